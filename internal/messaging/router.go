// Package messaging implements conversations: the per-conversation writer
// on the server and the timeline reconciliation used by clients.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/metrics"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

const (
	DefaultIdleTimeout = 2 * time.Minute
	// inboxSize bounds the sends queued on one conversation.
	inboxSize = 64
	// maxSeqRetries bounds how often a writer reloads last_seq after losing
	// the sequence to another process.
	maxSeqRetries = 3
)

var ErrRouterStopped = errors.New("message router stopped")

// SendRequest is one message submitted by a participant.
type SendRequest struct {
	ConversationID string
	SenderID       string
	Body           string
	// Nonce is chosen by the client; resending with the same nonce returns
	// the stored message instead of creating a second one.
	Nonce string
}

// SendResult is the stored message. Duplicate is set when the nonce had
// already been seen.
type SendResult struct {
	Message   core.Message
	Duplicate bool
}

type sendReply struct {
	res SendResult
	err error
}

type sendCall struct {
	ctx   context.Context
	req   SendRequest
	reply chan sendReply
}

// Router owns one writer goroutine per active conversation. All sends to a
// conversation are applied by its writer in arrival order, which makes the
// seq assignment a plain increment.
type Router struct {
	store     *storage.Store
	publisher realtime.Publisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	idle      time.Duration

	mu      sync.Mutex
	actors  map[string]*actor
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

type actor struct {
	id    string
	inbox chan sendCall
	// pending counts callers that hold the actor but have not been served.
	// Guarded by Router.mu.
	pending int
	lastSeq int64
	loaded  bool
}

func NewRouter(store *storage.Store, publisher realtime.Publisher, m *metrics.Metrics, logger *log.Logger, idle time.Duration) *Router {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if publisher == nil {
		publisher = realtime.Discard
	}
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Router{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentMessaging),
		idle:      idle,
		actors:    make(map[string]*actor),
		stop:      make(chan struct{}),
	}
}

// Send hands req to the conversation's writer and waits for the result.
// The caller must have checked that the sender participates.
func (r *Router) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	body, err := core.ValidateMessageBody(req.Body)
	if err != nil {
		return SendResult{}, err
	}
	req.Body = body

	a, err := r.acquire(req.ConversationID)
	if err != nil {
		return SendResult{}, err
	}
	call := sendCall{ctx: ctx, req: req, reply: make(chan sendReply, 1)}

	select {
	case a.inbox <- call:
	case <-ctx.Done():
		r.release(a)
		return SendResult{}, ctx.Err()
	case <-r.stop:
		r.release(a)
		return SendResult{}, ErrRouterStopped
	}

	select {
	case rep := <-call.reply:
		return rep.res, rep.err
	case <-ctx.Done():
		// The writer may still store the message; a retry with the same
		// nonce returns it.
		return SendResult{}, ctx.Err()
	}
}

// Active reports how many conversation writers are running.
func (r *Router) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Stop ends every writer once its queued sends are served.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Router) acquire(conversationID string) (*actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRouterStopped
	}
	a, ok := r.actors[conversationID]
	if !ok {
		a = &actor{id: conversationID, inbox: make(chan sendCall, inboxSize)}
		r.actors[conversationID] = a
		r.wg.Add(1)
		go r.run(a)
	}
	a.pending++
	return a, nil
}

func (r *Router) release(a *actor) {
	r.mu.Lock()
	a.pending--
	r.mu.Unlock()
}

// retire removes an idle actor. It fails while a caller still holds it.
func (r *Router) retire(a *actor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	delete(r.actors, a.id)
	return true
}

func (r *Router) run(a *actor) {
	defer r.wg.Done()
	idle := time.NewTimer(r.idle)
	defer idle.Stop()

	for {
		select {
		case call := <-a.inbox:
			r.release(a)
			res, err := r.apply(a, call)
			call.reply <- sendReply{res: res, err: err}
			resetTimer(idle, r.idle)
		case <-idle.C:
			if r.retire(a) {
				r.logger.Debug("Conversation writer idle, stopping", log.FieldConversationID, a.id)
				return
			}
			idle.Reset(r.idle)
		case <-r.stop:
			r.drain(a)
			return
		}
	}
}

// drain answers the sends already queued when the router stops.
func (r *Router) drain(a *actor) {
	for {
		select {
		case call := <-a.inbox:
			r.release(a)
			res, err := r.apply(a, call)
			call.reply <- sendReply{res: res, err: err}
		default:
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (r *Router) apply(a *actor, call sendCall) (SendResult, error) {
	ctx, req := call.ctx, call.req
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	for attempt := 0; ; attempt++ {
		if req.Nonce != "" {
			m, err := r.store.FindMessageByNonce(ctx, req.ConversationID, req.SenderID, req.Nonce)
			if err == nil {
				return SendResult{Message: m, Duplicate: true}, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return SendResult{}, fmt.Errorf("lookup nonce: %w", err)
			}
		}
		if !a.loaded {
			seq, err := r.store.LastSeq(ctx, req.ConversationID)
			if err != nil {
				return SendResult{}, fmt.Errorf("load last seq: %w", err)
			}
			a.lastSeq, a.loaded = seq, true
		}

		m, err := r.store.InsertMessage(ctx, core.Message{
			ConversationID: req.ConversationID,
			SenderID:       req.SenderID,
			Seq:            a.lastSeq + 1,
			Body:           req.Body,
			ClientNonce:    req.Nonce,
		})
		if errors.Is(err, storage.ErrConflict) && attempt < maxSeqRetries {
			// Another writer got there first. Reload and check the nonce again.
			a.loaded = false
			continue
		}
		if err != nil {
			return SendResult{}, fmt.Errorf("store message: %w", err)
		}
		a.lastSeq = m.Seq
		r.announce(ctx, m)
		return SendResult{Message: m}, nil
	}
}

// announce publishes the message on the conversation topic and a sidebar
// change on each participant's topic.
func (r *Router) announce(ctx context.Context, m core.Message) {
	r.metrics.IncMessagesSent()
	log.LogMutation(ctx, log.OpSend, "messages", m.ID, m.SenderID)

	if err := r.publisher.Publish(ctx, realtime.Change{Type: realtime.Insert, Table: "messages", Record: MessageRecord(m)}); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish message", log.FieldConversationID, m.ConversationID, log.FieldError, err)
	}

	participants, err := r.store.ListParticipants(ctx, m.ConversationID)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to list participants", log.FieldConversationID, m.ConversationID, log.FieldError, err)
		return
	}
	for _, p := range participants {
		c := realtime.Change{Type: realtime.Update, Table: "conversations", Record: ConversationRecord(m.ConversationID, p.UserID, m.Seq)}
		if err := r.publisher.Publish(ctx, c); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish conversation change", log.FieldUserID, p.UserID, log.FieldError, err)
		}
	}
}

// MessageRecord renders m in the change feed shape. The keys match the json
// tags of core.Message so clients can decode records directly.
func MessageRecord(m core.Message) map[string]any {
	return map[string]any{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"seq":             m.Seq,
		"body":            m.Body,
		"client_nonce":    m.ClientNonce,
		"created_at":      m.CreatedAt,
	}
}

// ConversationRecord is the sidebar change addressed to one participant.
func ConversationRecord(conversationID, userID string, lastSeq int64) map[string]any {
	return map[string]any{"id": conversationID, "user_id": userID, "last_seq": lastSeq}
}
