package http

import (
	"net/http"
	"strconv"
	"strings"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/resource"
	"ordem/internal/services"
	"ordem/internal/storage"
)

type (
	adminView struct {
		Stats storage.Stats
		Users adminUsersView
		Plans tableView
	}

	adminUsersView struct {
		Users   []services.AdminUserRow
		Plans   []core.Plan
		ActorID string
	}
)

func (s *Server) adminUsers(r *http.Request) (adminUsersView, error) {
	users, err := s.Admin.Users(r.Context())
	if err != nil {
		return adminUsersView{}, err
	}
	plans, err := s.Billing.Plans(r.Context())
	if err != nil {
		return adminUsersView{}, err
	}
	return adminUsersView{Users: users, Plans: plans, ActorID: session(r).UserID}, nil
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Admin.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err, "admin")
		return
	}
	users, err := s.adminUsers(r)
	if err != nil {
		s.fail(w, r, err, "admin")
		return
	}
	def, _ := resource.Lookup("plans")
	plans, err := s.tableFor(r, def, "")
	if err != nil {
		s.fail(w, r, err, "admin")
		return
	}
	s.render(w, r, http.StatusOK, "page_admin", s.page(r, "Administração", "admin", adminView{Stats: stats, Users: users, Plans: plans}))
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	s.writeAdminUsers(w, r, "")
}

func (s *Server) writeAdminUsers(w http.ResponseWriter, r *http.Request, message string) {
	view, err := s.adminUsers(r)
	if err != nil {
		s.fail(w, r, err, "admin_users")
		return
	}
	resp, err := s.partial(r, "admin_users", view)
	if err != nil {
		InternalServerError("Erro ao montar a lista de usuários").Write(w)
		return
	}
	resp.Retarget("#admin-users", "outerHTML")
	if message != "" {
		resp.TriggerSuccessNotification(message)
	}
	resp.Write(w)
}

func (s *Server) handleAdminRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.Admin.ToggleAdmin(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "admin_role")
		return
	}
	msg := "Acesso de administrador removido"
	if role == core.RoleAdmin {
		msg = "Usuário promovido a administrador"
	}
	s.writeAdminUsers(w, r, msg)
}

func (s *Server) handleAdminSubscription(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	days, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("days")))
	if err != nil {
		ErrorToast(http.StatusUnprocessableEntity, "Informe um número de dias").Write(w)
		return
	}
	target := r.PathValue("id")
	sub, err := s.Billing.SetSubscription(r.Context(), target, r.PostForm.Get("plan_id"), days)
	if err != nil {
		s.fail(w, r, err, "admin_subscription")
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentBilling).InfoContext(r.Context(), "Subscription set by admin",
		log.FieldUserID, target, "plan_id", sub.PlanID, "days", days)
	s.writeAdminUsers(w, r, "Assinatura atualizada")
}

func (s *Server) handleAdminCredits(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get("amount")), 10, 64)
	if err != nil {
		ErrorToast(http.StatusUnprocessableEntity, "Informe uma quantidade de créditos").Write(w)
		return
	}
	if _, err := s.Billing.GrantCredits(r.Context(), r.PathValue("id"), amount, r.PostForm.Get("reason")); err != nil {
		s.fail(w, r, err, "admin_credits")
		return
	}
	s.writeAdminUsers(w, r, "Créditos lançados")
}
