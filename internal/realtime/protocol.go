package realtime

import "encoding/json"

// Phoenix channel events.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
	EventChanges   = "postgres_changes"

	phoenixTopic = "phoenix"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string         `json:"status"`
	Response map[string]any `json:"response"`
}

func newMessage(topic, event string, payload any, ref string) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Event: event, Payload: raw, Ref: ref}, nil
}

func reply(topic, ref, status string, response map[string]any) Message {
	if response == nil {
		response = map[string]any{}
	}
	m, _ := newMessage(topic, EventReply, replyPayload{Status: status, Response: response}, ref)
	return m
}
