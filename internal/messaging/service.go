package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxTitleLength  = 80
)

var (
	ErrNotParticipant   = errors.New("not a participant of this conversation")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrNoParticipants   = errors.New("a group needs at least one other participant")
)

// Service is the server side of conversations. Every operation checks that
// the acting user takes part in the conversation.
type Service struct {
	store     *storage.Store
	router    *Router
	publisher realtime.Publisher
}

func NewService(store *storage.Store, router *Router, publisher realtime.Publisher) *Service {
	if publisher == nil {
		publisher = realtime.Discard
	}
	return &Service{store: store, router: router, publisher: publisher}
}

// StartDirect returns the direct conversation between userID and peerID,
// creating it on first contact.
func (s *Service) StartDirect(ctx context.Context, userID, peerID string) (core.Conversation, error) {
	if userID == peerID {
		return core.Conversation{}, ErrSelfConversation
	}
	if _, err := s.store.GetAccount(ctx, peerID); err != nil {
		return core.Conversation{}, fmt.Errorf("peer: %w", err)
	}
	key := core.DirectKey(userID, peerID)
	c, err := s.store.FindDirectConversation(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.Conversation{}, err
	}

	c, err = s.store.CreateConversation(ctx, core.Conversation{Kind: core.ConversationDirect, CreatedBy: userID}, key, []string{userID, peerID})
	if errors.Is(err, storage.ErrConflict) {
		// Both users opened the conversation at the same time.
		return s.store.FindDirectConversation(ctx, key)
	}
	if err != nil {
		return core.Conversation{}, err
	}
	log.LogMutation(ctx, log.OpCreate, "conversations", c.ID, userID)
	s.notify(ctx, c.ID, 0, userID, peerID)
	return c, nil
}

// CreateGroup starts a titled conversation between userID and members.
func (s *Service) CreateGroup(ctx context.Context, userID, title string, members []string) (core.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.Conversation{}, core.ErrEmptyField
	}
	if len([]rune(title)) > maxTitleLength {
		return core.Conversation{}, core.ErrTooLong
	}
	ids := []string{userID}
	seen := map[string]bool{userID: true}
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		ids = append(ids, m)
	}
	if len(ids) < 2 {
		return core.Conversation{}, ErrNoParticipants
	}

	c, err := s.store.CreateConversation(ctx, core.Conversation{Kind: core.ConversationGroup, Title: title, CreatedBy: userID}, "", ids)
	if err != nil {
		return core.Conversation{}, err
	}
	log.LogMutation(ctx, log.OpCreate, "conversations", c.ID, userID)
	s.notify(ctx, c.ID, 0, ids...)
	return c, nil
}

func (s *Service) authorize(ctx context.Context, conversationID, userID string) error {
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// IsParticipant lets the realtime layer authorize conversation topics.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.store.IsParticipant(ctx, conversationID, userID)
}

func (s *Service) Conversations(ctx context.Context, userID string) ([]core.ConversationSummary, error) {
	return s.store.ListConversationSummaries(ctx, userID)
}

// Conversation returns the conversation with its participants.
func (s *Service) Conversation(ctx context.Context, conversationID, userID string) (core.Conversation, []core.Participant, error) {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return core.Conversation{}, nil, err
	}
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return core.Conversation{}, nil, err
	}
	ps, err := s.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return core.Conversation{}, nil, err
	}
	return c, ps, nil
}

// Messages returns messages with seq > after. A negative after returns the
// most recent page.
func (s *Service) Messages(ctx context.Context, conversationID, userID string, after int64, limit int) ([]core.Message, error) {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	if after < 0 {
		return s.store.ListRecentMessages(ctx, conversationID, limit)
	}
	return s.store.ListMessagesAfter(ctx, conversationID, after, limit)
}

func (s *Service) Send(ctx context.Context, conversationID, userID, body, nonce string) (SendResult, error) {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return SendResult{}, err
	}
	if len(nonce) > 64 {
		return SendResult{}, fmt.Errorf("nonce: %w", core.ErrTooLong)
	}
	return s.router.Send(ctx, SendRequest{ConversationID: conversationID, SenderID: userID, Body: body, Nonce: nonce})
}

// MarkRead moves the user's read marker forward to seq and returns it.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string, seq int64) (int64, error) {
	if err := s.authorize(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	marker, err := s.store.MarkRead(ctx, conversationID, userID, seq)
	if err != nil {
		return 0, err
	}
	s.notify(ctx, conversationID, marker, userID)
	return marker, nil
}

func (s *Service) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	return s.store.UnreadTotal(ctx, userID)
}

func (s *Service) notify(ctx context.Context, conversationID string, seq int64, userIDs ...string) {
	for _, uid := range userIDs {
		c := realtime.Change{Type: realtime.Update, Table: "conversations", Record: ConversationRecord(conversationID, uid, seq)}
		if err := s.publisher.Publish(ctx, c); err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentMessaging).WarnContext(ctx, "Failed to publish conversation change",
				log.FieldConversationID, conversationID, log.FieldError, err)
		}
	}
}
