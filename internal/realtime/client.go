package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by channel operations before Connect.
var ErrNotConnected = errors.New("realtime client not connected")

// ChangeHandler handles a change delivered on a channel.
type ChangeHandler func(Change)

// Client is a change feed client. Handlers run on the read goroutine, one at
// a time, in the order the frames arrived.
type Client struct {
	url       string
	token     string
	heartbeat time.Duration

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	channels map[string]*Channel
	pending  map[string]chan replyPayload
	ref      int
	done     chan struct{}
}

// Channel is a subscription to one topic.
type Channel struct {
	client   *Client
	topic    string
	joined   bool
	handlers map[ChangeType][]ChangeHandler
}

// NewClient builds a client for the server at baseURL (http or https).
func NewClient(baseURL, token string) *Client {
	wsURL := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + strings.TrimPrefix(wsURL, "https")
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	return &Client{
		url:       wsURL + "/realtime/v1/websocket?vsn=1.0.0",
		token:     token,
		heartbeat: 30 * time.Second,
		channels:  make(map[string]*Channel),
		pending:   make(map[string]chan replyPayload),
		done:      make(chan struct{}),
	}
}

// SetHeartbeat changes the heartbeat interval. Call before Connect.
func (c *Client) SetHeartbeat(d time.Duration) {
	c.heartbeat = d
}

// Connect dials the server and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	c.done = make(chan struct{})

	go c.readLoop(conn, c.done)
	go c.heartbeatLoop(c.done)
	return nil
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// Channel returns the channel for topic, creating it on first use.
func (c *Client) Channel(topic string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: c, topic: topic, handlers: make(map[ChangeType][]ChangeHandler)}
	c.channels[topic] = ch
	return ch
}

// On registers h for changes of type t. The wildcard "*" matches every type.
func (ch *Channel) On(t ChangeType, h ChangeHandler) *Channel {
	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	ch.handlers[t] = append(ch.handlers[t], h)
	return ch
}

// OnAll registers h for every change type.
func (ch *Channel) OnAll(h ChangeHandler) *Channel {
	return ch.On("*", h)
}

// Subscribe joins the topic and waits for the server's reply.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.client.mu.Lock()
	joined := ch.joined
	ch.client.mu.Unlock()
	if joined {
		return nil
	}
	if err := ch.client.call(ctx, ch.topic, EventJoin); err != nil {
		return fmt.Errorf("join %s: %w", ch.topic, err)
	}
	ch.client.mu.Lock()
	ch.joined = true
	ch.client.mu.Unlock()
	return nil
}

// Unsubscribe leaves the topic.
func (ch *Channel) Unsubscribe(ctx context.Context) error {
	ch.client.mu.Lock()
	joined := ch.joined
	ch.client.mu.Unlock()
	if !joined {
		return nil
	}
	if err := ch.client.call(ctx, ch.topic, EventLeave); err != nil {
		return fmt.Errorf("leave %s: %w", ch.topic, err)
	}
	ch.client.mu.Lock()
	ch.joined = false
	delete(ch.client.channels, ch.topic)
	ch.client.mu.Unlock()
	return nil
}

func (c *Client) nextRef() string {
	c.ref++
	return strconv.Itoa(c.ref)
}

// call sends event on topic and waits for the matching phx_reply.
func (c *Client) call(ctx context.Context, topic, event string) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ref := c.nextRef()
	wait := make(chan replyPayload, 1)
	c.pending[ref] = wait
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	msg, err := newMessage(topic, event, map[string]any{}, ref)
	if err != nil {
		return err
	}
	msg.JoinRef = ref
	if err := c.write(msg); err != nil {
		return err
	}

	select {
	case r := <-wait:
		if r.Status != "ok" {
			reason, _ := r.Response["reason"].(string)
			return fmt.Errorf("server replied %s: %s", r.Status, reason)
		}
		return nil
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Event {
		case EventReply:
			var r replyPayload
			if err := json.Unmarshal(msg.Payload, &r); err != nil {
				continue
			}
			c.mu.Lock()
			wait := c.pending[msg.Ref]
			c.mu.Unlock()
			if wait != nil {
				select {
				case wait <- r:
				default:
				}
			}
		case EventChanges:
			var change Change
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				continue
			}
			c.dispatch(msg.Topic, change)
		}
	}
}

func (c *Client) dispatch(topic string, change Change) {
	c.mu.Lock()
	ch := c.channels[topic]
	var handlers []ChangeHandler
	if ch != nil {
		handlers = append(handlers, ch.handlers[change.Type]...)
		handlers = append(handlers, ch.handlers["*"]...)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(change)
	}
}

func (c *Client) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			ref := c.nextRef()
			c.mu.Unlock()
			msg, _ := newMessage(phoenixTopic, EventHeartbeat, map[string]any{}, ref)
			if err := c.write(msg); err != nil {
				return
			}
		}
	}
}
