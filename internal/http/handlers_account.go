package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"ordem/internal/auth"
	"ordem/internal/billing"
	"ordem/internal/core"
	"ordem/internal/files"
	"ordem/internal/log"
)

type (
	profileView struct {
		Account core.Account
		Billing billing.Status
	}

	paywallView struct {
		Plans   []core.Plan
		Billing billing.Status
	}
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := session(r).UserID
	acc, err := s.Profiles.Get(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, "profile")
		return
	}
	st, err := s.Billing.Status(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, "profile")
		return
	}
	s.render(w, r, http.StatusOK, "page_profile", s.page(r, "Perfil", "profile", profileView{Account: acc, Billing: st}))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	err := s.Profiles.Update(r.Context(), session(r).UserID, r.PostForm.Get("display_name"), r.PostForm.Get("bio"))
	if err != nil {
		s.fail(w, r, err, "update_profile")
		return
	}
	NewHTMXResponse().
		Header("HX-Reswap", "none").
		TriggerSuccessNotification("Perfil atualizado").
		TriggerRecordsChanged("profiles").
		Write(w)
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, err := uploadedFile(r, "avatar")
	if err != nil {
		ErrorToast(http.StatusBadRequest, "Não foi possível ler a imagem").Write(w)
		return
	}
	if f == nil {
		ErrorToast(http.StatusUnprocessableEntity, "Escolha uma imagem").Write(w)
		return
	}
	defer f.Close()

	path, err := s.Profiles.SetAvatar(r.Context(), session(r).UserID, f)
	if err != nil {
		s.fail(w, r, err, "avatar")
		return
	}
	acc, err := s.Profiles.Get(r.Context(), session(r).UserID)
	if err != nil {
		s.fail(w, r, err, "avatar")
		return
	}
	acc.Profile.AvatarPath = path
	resp, err := s.partial(r, "profile_avatar", acc)
	if err != nil {
		InternalServerError("Erro ao montar o avatar").Write(w)
		return
	}
	resp.TriggerSuccessNotification("Foto atualizada").Write(w)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	next := r.PostForm.Get("new_password")
	if next != r.PostForm.Get("new_password_confirm") {
		ErrorToast(http.StatusUnprocessableEntity, "As senhas não conferem").Write(w)
		return
	}
	if err := s.Auth.ChangePassword(r.Context(), session(r).UserID, r.PostForm.Get("current_password"), next); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			ErrorToast(http.StatusUnprocessableEntity, "Senha atual incorreta").Write(w)
			return
		}
		s.fail(w, r, err, "change_password")
		return
	}
	NewHTMXResponse().
		Header("HX-Reswap", "none").
		TriggerSuccessNotification("Senha alterada").
		TriggerFormReset().
		Write(w)
}

func (s *Server) handlePaywall(w http.ResponseWriter, r *http.Request) {
	user := session(r).UserID
	plans, err := s.Billing.Plans(r.Context())
	if err != nil {
		s.fail(w, r, err, "paywall")
		return
	}
	st, err := s.Billing.Status(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, "paywall")
		return
	}
	s.render(w, r, http.StatusOK, "page_paywall", s.page(r, "Planos", "paywall", paywallView{Plans: plans, Billing: st}))
}

func (s *Server) handleChoosePlan(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	sub, err := s.Billing.ChoosePlan(r.Context(), sess.UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "choose_plan")
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentBilling).InfoContext(r.Context(), "Plan chosen",
		log.FieldUserID, sess.UserID, "plan_id", sub.PlanID,
		"period_end", sub.CurrentPeriodEnd.Format("2006-01-02"))
	s.redirectTo(w, r, "/")
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	obj, err := s.Files.Open(r.Context(), r.PathValue("bucket"), r.PathValue("key"))
	if err != nil {
		switch {
		case errors.Is(err, files.ErrNotFound), errors.Is(err, files.ErrUnknownBucket), errors.Is(err, files.ErrInvalidKey):
			http.NotFound(w, r)
		default:
			log.FromContext(r.Context()).WithComponent(log.ComponentFiles).ErrorContext(r.Context(), "Open file failed",
				log.FieldPath, r.URL.Path, log.FieldError, err)
			http.Error(w, "Erro ao carregar o arquivo", http.StatusInternalServerError)
		}
		return
	}
	defer obj.Body.Close()

	h := w.Header()
	if obj.ContentType != "" {
		h.Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	// Keys are random and never rewritten, so the content never changes.
	h.Set("Cache-Control", "private, max-age=86400, immutable")
	_, _ = io.Copy(w, obj.Body)
}
