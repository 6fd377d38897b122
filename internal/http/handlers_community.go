package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"ordem/internal/core"
	"ordem/internal/resource"
	"ordem/internal/services"
)

// multipartOverhead is the room left for the form fields next to the file.
const multipartOverhead = 64 << 10

type (
	communityView struct {
		Feed     []core.FeedItem
		Events   []core.EventItem
		MyEvents tableView
	}

	peopleView struct {
		Query  string
		People []services.Person
	}

	postForm struct {
		ID      string
		Content string
	}
)

func (s *Server) handleCommunity(w http.ResponseWriter, r *http.Request) {
	user := session(r).UserID
	feed, err := s.Community.Feed(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, "feed")
		return
	}
	events, err := s.Community.Events(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, "events")
		return
	}
	def, _ := resource.Lookup("events")
	mine, err := s.tableFor(r, def, "")
	if err != nil {
		s.fail(w, r, err, "events")
		return
	}
	s.render(w, r, http.StatusOK, "page_community", s.page(r, "Comunidade", "community",
		communityView{Feed: feed, Events: events, MyEvents: mine}))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, r, nil)
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, decorate func(*HTMXResponseBuilder)) {
	feed, err := s.Community.Feed(r.Context(), session(r).UserID)
	if err != nil {
		s.fail(w, r, err, "feed")
		return
	}
	resp, err := s.partial(r, "community_feed", feed)
	if err != nil {
		InternalServerError("Erro ao montar o feed").Write(w)
		return
	}
	if decorate != nil {
		decorate(resp)
	}
	resp.Write(w)
}

// uploadedFile returns the named multipart file, or nil when none was sent.
func uploadedFile(r *http.Request, name string) (io.ReadCloser, error) {
	f, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size == 0 {
		f.Close()
		return nil, nil
	}
	return f, nil
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	limit := s.Files.MaxBytes() + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorToast(http.StatusRequestEntityTooLarge, "Arquivo grande demais").Write(w)
			return false
		}
		ErrorToast(http.StatusBadRequest, "Formato de requisição inválido").Write(w)
		return false
	}
	return true
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	var image io.Reader
	f, err := uploadedFile(r, "image")
	if err != nil {
		ErrorToast(http.StatusBadRequest, "Não foi possível ler a imagem").Write(w)
		return
	}
	if f != nil {
		defer f.Close()
		image = f
	}
	if _, err := s.Community.CreatePost(r.Context(), session(r).UserID, r.PostFormValue("content"), image); err != nil {
		s.fail(w, r, err, "create_post")
		return
	}
	s.writeFeed(w, r, func(b *HTMXResponseBuilder) {
		b.TriggerSuccessNotification("Publicado").TriggerFormReset().TriggerRecordsChanged("posts")
	})
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	feed, err := s.Community.Feed(r.Context(), session(r).UserID)
	if err != nil {
		s.fail(w, r, err, "edit_post")
		return
	}
	id := r.PathValue("id")
	for _, item := range feed {
		if item.ID == id && item.Mine {
			s.render(w, r, http.StatusOK, "post_modal", postForm{ID: item.ID, Content: item.Content})
			return
		}
	}
	ErrorToast(http.StatusNotFound, "Publicação não encontrada").Write(w)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if _, err := s.Community.UpdatePost(r.Context(), session(r).UserID, r.PathValue("id"), r.PostForm.Get("content")); err != nil {
		s.fail(w, r, err, "update_post")
		return
	}
	s.writeFeed(w, r, func(b *HTMXResponseBuilder) {
		b.Retarget("#feed", "outerHTML").TriggerSuccessNotification("Publicação atualizada").TriggerModalClose()
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.Community.DeletePost(r.Context(), session(r).UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err, "delete_post")
		return
	}
	s.writeFeed(w, r, func(b *HTMXResponseBuilder) {
		b.TriggerSuccessNotification("Publicação excluída").TriggerRecordsChanged("posts")
	})
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Community.ToggleLike(r.Context(), session(r).UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err, "like")
		return
	}
	s.writeFeed(w, r, nil)
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	people, err := s.Community.People(r.Context(), session(r).UserID, q)
	if err != nil {
		s.fail(w, r, err, "people")
		return
	}
	view := peopleView{Query: q, People: people}
	if isHTMX(r) {
		s.render(w, r, http.StatusOK, "community_people", view)
		return
	}
	s.render(w, r, http.StatusOK, "page_people", s.page(r, "Pessoas", "community", view))
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	user := session(r).UserID
	following, err := s.Community.ToggleFollow(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "follow")
		return
	}
	q := strings.TrimSpace(r.Form.Get("q"))
	people, err := s.Community.People(r.Context(), user, q)
	if err != nil {
		s.fail(w, r, err, "people")
		return
	}
	resp, err := s.partial(r, "community_people", peopleView{Query: q, People: people})
	if err != nil {
		InternalServerError("Erro ao montar a lista").Write(w)
		return
	}
	msg := "Você deixou de seguir"
	if following {
		msg = "Agora você segue esta pessoa"
	}
	resp.TriggerSuccessNotification(msg).TriggerRecordsChanged("follows").Write(w)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeEvents(w, r, nil)
}

func (s *Server) writeEvents(w http.ResponseWriter, r *http.Request, decorate func(*HTMXResponseBuilder)) {
	events, err := s.Community.Events(r.Context(), session(r).UserID)
	if err != nil {
		s.fail(w, r, err, "events")
		return
	}
	resp, err := s.partial(r, "community_events", events)
	if err != nil {
		InternalServerError("Erro ao montar os eventos").Write(w)
		return
	}
	if decorate != nil {
		decorate(resp)
	}
	resp.Write(w)
}

func (s *Server) handleJoinEvent(w http.ResponseWriter, r *http.Request) {
	joined, err := s.Community.ToggleEvent(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "join_event")
		return
	}
	msg := "Presença cancelada"
	if joined {
		msg = "Presença confirmada"
	}
	s.writeEvents(w, r, func(b *HTMXResponseBuilder) {
		b.TriggerSuccessNotification(msg)
	})
}
