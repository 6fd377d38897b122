package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/messaging"
	"ordem/internal/realtime"
	"ordem/internal/services"
	"ordem/internal/storage"
)

type (
	sidebarView struct {
		Conversations []sidebarEntry
		ActiveID      string
		Topic         string
	}

	sidebarEntry struct {
		core.ConversationSummary
		Title string
	}

	inboxView struct {
		Sidebar sidebarView
		People  []services.Person
	}

	conversationView struct {
		Sidebar      sidebarView
		Conversation core.Conversation
		Title        string
		Participants []core.Participant
		Messages     []core.Message
		Names        map[string]string
		UserID       string
		LastSeq      int64
		Topic        string
	}

	sendBody struct {
		Body  string `json:"body"`
		Nonce string `json:"nonce"`
	}
)

func displayTitle(c core.Conversation, peers []core.Participant, self string) string {
	if c.Kind == core.ConversationGroup && c.Title != "" {
		return c.Title
	}
	var names []string
	for _, p := range peers {
		if p.UserID != self {
			names = append(names, p.DisplayName)
		}
	}
	if len(names) == 0 {
		return "Conversa"
	}
	return strings.Join(names, ", ")
}

func (s *Server) sidebar(r *http.Request, activeID string) (sidebarView, error) {
	user := session(r).UserID
	sums, err := s.Messaging.Conversations(r.Context(), user)
	if err != nil {
		return sidebarView{}, err
	}
	v := sidebarView{ActiveID: activeID, Topic: realtime.Topic("conversations", "user_id", user)}
	for _, c := range sums {
		v.Conversations = append(v.Conversations, sidebarEntry{ConversationSummary: c, Title: displayTitle(c.Conversation, c.Peers, user)})
	}
	return v, nil
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	sb, err := s.sidebar(r, "")
	if err != nil {
		s.fail(w, r, err, "inbox")
		return
	}
	people, err := s.Community.People(r.Context(), session(r).UserID, "")
	if err != nil {
		s.fail(w, r, err, "inbox")
		return
	}
	s.render(w, r, http.StatusOK, "page_inbox", s.page(r, "Mensagens", "messages", inboxView{Sidebar: sb, People: people}))
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	sb, err := s.sidebar(r, r.URL.Query().Get("active"))
	if err != nil {
		s.fail(w, r, err, "sidebar")
		return
	}
	s.render(w, r, http.StatusOK, "message_sidebar", sb)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	user := session(r).UserID
	id := r.PathValue("id")
	c, participants, err := s.Messaging.Conversation(r.Context(), id, user)
	if err != nil {
		if errors.Is(err, messaging.ErrNotParticipant) || errors.Is(err, storage.ErrNotFound) {
			s.handleNotFound(w, r)
			return
		}
		s.fail(w, r, err, "conversation")
		return
	}
	msgs, err := s.Messaging.Messages(r.Context(), id, user, -1, messaging.DefaultPageSize)
	if err != nil {
		s.fail(w, r, err, "conversation")
		return
	}
	sb, err := s.sidebar(r, id)
	if err != nil {
		s.fail(w, r, err, "conversation")
		return
	}
	view := conversationView{
		Sidebar:      sb,
		Conversation: c,
		Title:        displayTitle(c, participants, user),
		Participants: participants,
		Messages:     msgs,
		Names:        make(map[string]string, len(participants)),
		UserID:       user,
		Topic:        realtime.Topic("messages", "conversation_id", id),
	}
	for _, p := range participants {
		view.Names[p.UserID] = p.DisplayName
	}
	if n := len(msgs); n > 0 {
		view.LastSeq = msgs[n-1].Seq
		if _, err := s.Messaging.MarkRead(r.Context(), id, user, view.LastSeq); err != nil {
			s.logger.WarnContext(r.Context(), "Mark read failed", log.FieldConversationID, id, log.FieldError, err)
		}
	}
	s.render(w, r, http.StatusOK, "page_conversation", s.page(r, view.Title, "messages", view))
}

func (s *Server) redirectTo(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(target).Write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleStartDirect(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	c, err := s.Messaging.StartDirect(r.Context(), session(r).UserID, r.PostForm.Get("peer_id"))
	if err != nil {
		s.fail(w, r, err, "start_direct")
		return
	}
	s.redirectTo(w, r, "/messages/"+c.ID)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	c, err := s.Messaging.CreateGroup(r.Context(), session(r).UserID, r.PostForm.Get("title"), r.PostForm["members"])
	if err != nil {
		if errors.Is(err, core.ErrEmptyField) {
			ErrorToast(http.StatusUnprocessableEntity, "Dê um nome ao grupo").Write(w)
			return
		}
		s.fail(w, r, err, "create_group")
		return
	}
	s.redirectTo(w, r, "/messages/"+c.ID)
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	n, err := s.Messaging.UnreadTotal(r.Context(), session(r).UserID)
	if err != nil {
		s.failJSON(w, r, err, "unread")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := ParseInt64(q, "after", -1)
	limit := int(ParseInt64(q, "limit", messaging.DefaultPageSize))
	msgs, err := s.Messaging.Messages(r.Context(), r.PathValue("id"), session(r).UserID, after, limit)
	if err != nil {
		s.failJSON(w, r, err, "list_messages")
		return
	}
	if msgs == nil {
		msgs = []core.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Formato de requisição inválido")
		return
	}
	body := sendBody{Body: p.Get("body"), Nonce: p.Get("nonce")}
	res, err := s.Messaging.Send(r.Context(), r.PathValue("id"), session(r).UserID, body.Body, body.Nonce)
	if err != nil {
		s.failJSON(w, r, err, "send_message")
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"message": res.Message, "duplicate": res.Duplicate})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Formato de requisição inválido")
		return
	}
	seq, err := strconv.ParseInt(p.Get("seq"), 10, 64)
	if err != nil || seq < 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "seq inválido")
		return
	}
	marker, err := s.Messaging.MarkRead(r.Context(), r.PathValue("id"), session(r).UserID, seq)
	if err != nil {
		s.failJSON(w, r, err, "mark_read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"last_read_seq": marker})
}
