package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"ordem/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Handler serves the websocket change feed.
type Handler struct {
	Hub        *Hub
	Authorizer Authorizer
	// Authenticate resolves the user of the upgrade request.
	Authenticate func(r *http.Request) (string, error)
	// Connections is optional.
	Connections prometheus.Gauge
	Logger      *log.Logger

	upgrader websocket.Upgrader
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = log.FromContext(r.Context())
	}
	logger = logger.WithComponent(log.ComponentRealtime)

	userID, err := h.Authenticate(r)
	if err != nil || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", log.FieldError, err)
		return
	}
	if h.Connections != nil {
		h.Connections.Inc()
		defer h.Connections.Dec()
	}

	c := &wsConn{
		conn:   conn,
		hub:    h.Hub,
		auth:   h.Authorizer,
		userID: userID,
		sub:    h.Hub.NewSubscriber(),
		out:    make(chan Message, 16),
		logger: logger.With(log.FieldUserID, userID),
	}
	c.run(r.Context())
}

type wsConn struct {
	conn   *websocket.Conn
	hub    *Hub
	auth   Authorizer
	userID string
	sub    *Subscriber
	// out carries replies produced by the read loop.
	out        chan Message
	writerDone chan struct{}
	logger     *log.Logger
}

// run blocks until the connection is closed by either side.
func (c *wsConn) run(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	defer c.hub.Remove(c.sub)

	c.writerDone = make(chan struct{})
	go func() {
		defer close(c.writerDone)
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	<-c.writerDone
	c.conn.Close()
}

func (c *wsConn) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Realtime connection closed", log.FieldError, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var out Message
		switch msg.Event {
		case EventHeartbeat:
			out = reply(phoenixTopic, msg.Ref, "ok", nil)
		case EventJoin:
			out = c.join(ctx, msg)
		case EventLeave:
			c.hub.Leave(c.sub, msg.Topic)
			out = reply(msg.Topic, msg.Ref, "ok", nil)
		default:
			out = reply(msg.Topic, msg.Ref, "error", map[string]any{"reason": "unknown event"})
		}

		select {
		case c.out <- out:
		case <-c.writerDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsConn) join(ctx context.Context, msg Message) Message {
	ok, err := c.auth.CanJoin(ctx, c.userID, msg.Topic)
	if err != nil {
		c.logger.WarnContext(ctx, "Join check failed", log.FieldTopic, msg.Topic, log.FieldError, err)
		return reply(msg.Topic, msg.Ref, "error", map[string]any{"reason": "invalid topic"})
	}
	if !ok {
		return reply(msg.Topic, msg.Ref, "error", map[string]any{"reason": "unauthorized"})
	}
	c.hub.Join(c.sub, msg.Topic)
	c.logger.DebugContext(ctx, "Joined topic", log.FieldTopic, msg.Topic)
	return reply(msg.Topic, msg.Ref, "ok", nil)
}

func (c *wsConn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg Message
		select {
		case <-ctx.Done():
			c.writeClose(websocket.CloseNormalClosure)
			return
		case <-c.sub.Done():
			// Dropped by the hub; the client reconnects and refetches.
			c.writeClose(websocket.CloseTryAgainLater)
			return
		case msg = <-c.out:
		case msg = <-c.sub.C():
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
			continue
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.writeJSON(msg); err != nil {
			c.conn.Close()
			return
		}
	}
}

func (c *wsConn) writeJSON(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) writeClose(code int) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	// Unblock the read loop.
	c.conn.Close()
}
