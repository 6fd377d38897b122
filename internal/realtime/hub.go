package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"ordem/internal/log"
)

const defaultBuffer = 64

// Subscriber is one consumer of the hub, usually a websocket connection.
type Subscriber struct {
	send chan Message
	done chan struct{}
	once sync.Once
}

// C delivers the frames routed to the subscriber.
func (s *Subscriber) C() <-chan Message { return s.send }

// Done is closed when the hub dropped the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub routes published changes to the subscribers of their topics. Sends never
// block: a subscriber whose buffer is full is dropped.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	joined map[*Subscriber]map[string]struct{}
	buffer int
	closed bool
	logger *log.Logger
}

func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		joined: make(map[*Subscriber]map[string]struct{}),
		buffer: buffer,
		logger: logger.WithComponent(log.ComponentRealtime),
	}
}

// NewSubscriber registers a subscriber without topics. On a closed hub the
// subscriber is returned already done.
func (h *Hub) NewSubscriber() *Subscriber {
	s := &Subscriber{send: make(chan Message, h.buffer), done: make(chan struct{})}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.joined[s] = make(map[string]struct{})
	return s
}

func (h *Hub) Join(s *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.joined[s]
	if !ok {
		return
	}
	topics[topic] = struct{}{}
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) Leave(s *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, topic)
}

func (h *Hub) leaveLocked(s *Subscriber, topic string) {
	if topics, ok := h.joined[s]; ok {
		delete(topics, topic)
	}
	if subs := h.topics[topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Remove unregisters s from every topic and closes it.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	for topic := range h.joined[s] {
		h.leaveLocked(s, topic)
	}
	delete(h.joined, s)
	s.close()
}

// Subscribers counts the subscribers joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish delivers c on each of its topics.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}

	var slow []*Subscriber
	h.mu.RLock()
	for _, topic := range c.Topics() {
		msg := Message{Topic: topic, Event: EventChanges, Payload: payload}
		for s := range h.topics[topic] {
			select {
			case s.send <- msg:
			default:
				slow = append(slow, s)
			}
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, s := range slow {
			h.removeLocked(s)
		}
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "Dropped slow realtime subscribers", "count", len(slow), log.FieldTable, c.Table)
	}
	return nil
}

// Close drops every subscriber. Later subscribers are born closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.joined {
		h.removeLocked(s)
	}
}
