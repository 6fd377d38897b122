package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ordem/internal/realtime"
)

// ChangeMessage is the JSON body of every message on the changes exchange. It
// carries the same envelope as the websocket feed.
type ChangeMessage struct {
	Type            realtime.ChangeType `json:"type"`
	Table           string              `json:"table"`
	Record          map[string]any      `json:"record"`
	OldRecord       map[string]any      `json:"old_record"`
	CommitTimestamp time.Time           `json:"commit_timestamp"`
}

func NewChangeMessage(c realtime.Change) *ChangeMessage {
	ts := c.CommitTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		Type:            c.Type,
		Table:           c.Table,
		Record:          c.Record,
		OldRecord:       c.OldRecord,
		CommitTimestamp: ts,
	}
}

// RoutingKey is "<table>.<type>" in lower case, e.g. "transactions.insert".
func (m *ChangeMessage) RoutingKey() string {
	return m.Table + "." + strings.ToLower(string(m.Type))
}

func (m *ChangeMessage) Change() realtime.Change {
	return realtime.Change{
		Type:            m.Type,
		Table:           m.Table,
		Record:          m.Record,
		OldRecord:       m.OldRecord,
		CommitTimestamp: m.CommitTimestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and checks a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Table == "" {
		return nil, errors.New("change message without table")
	}
	switch msg.Type {
	case realtime.Insert, realtime.Update, realtime.Delete:
	default:
		return nil, errors.New("change message with unknown type " + string(msg.Type))
	}
	return &msg, nil
}
