package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/realtime"
)

const DefaultPollInterval = 10 * time.Second

// Fetcher loads stored messages newer than after.
type Fetcher interface {
	MessagesAfter(ctx context.Context, conversationID string, after int64) ([]core.Message, error)
}

// Syncer keeps a Timeline current. Pushes arrive through the realtime
// client; a periodic poll picks up anything a push missed. Cancelling the
// context passed to Run stops both and aborts a poll in flight.
type Syncer struct {
	ConversationID string
	Timeline       *Timeline
	Fetcher        Fetcher
	// Realtime is optional. Without it the syncer only polls.
	Realtime     *realtime.Client
	PollInterval time.Duration
	// OnChange runs after the timeline changed.
	OnChange func()
	Logger   *log.Logger
}

func (s *Syncer) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.FromContext(context.Background()).WithComponent(log.ComponentMessaging)
}

func (s *Syncer) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

// Run blocks until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// A push that lands past a gap asks for an immediate poll.
	refill := make(chan struct{}, 1)
	if s.Realtime != nil {
		ch := s.Realtime.Channel(realtime.Topic("messages", "conversation_id", s.ConversationID))
		ch.On(realtime.Insert, func(c realtime.Change) {
			m, err := DecodeMessage(c.Record)
			if err != nil {
				s.logger().Warn("Dropping undecodable message push", log.FieldError, err)
				return
			}
			if s.Timeline.Apply(m) {
				s.changed()
			}
			if s.Timeline.Gap() {
				select {
				case refill <- struct{}{}:
				default:
				}
			}
		})
		if err := ch.Subscribe(ctx); err != nil {
			// Polling still keeps the timeline current.
			s.logger().Warn("Realtime subscribe failed, polling only",
				log.FieldConversationID, s.ConversationID, log.FieldError, err)
		} else {
			defer func() {
				leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = ch.Unsubscribe(leaveCtx)
			}()
		}
	}

	s.poll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		case <-refill:
			s.poll(ctx)
		}
	}
}

func (s *Syncer) poll(ctx context.Context) {
	msgs, err := s.Fetcher.MessagesAfter(ctx, s.ConversationID, s.Timeline.Cursor())
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger().Warn("Message poll failed", log.FieldConversationID, s.ConversationID, log.FieldError, err)
		}
		return
	}
	if s.Timeline.Merge(msgs) {
		s.changed()
	}
}

// DecodeMessage reads a message record from the change feed.
func DecodeMessage(record map[string]any) (core.Message, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return core.Message{}, err
	}
	var m core.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return core.Message{}, fmt.Errorf("decode message record: %w", err)
	}
	if m.ID == "" || m.ConversationID == "" {
		return core.Message{}, errors.New("message record without id")
	}
	return m, nil
}

// HTTPFetcher polls the messages API of a running server.
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (f HTTPFetcher) MessagesAfter(ctx context.Context, conversationID string, after int64) ([]core.Message, error) {
	u := strings.TrimRight(f.BaseURL, "/") + "/api/conversations/" + url.PathEscape(conversationID) +
		"/messages?after=" + strconv.FormatInt(after, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll messages: status %d", resp.StatusCode)
	}

	var body struct {
		Messages []core.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return body.Messages, nil
}
