package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choreChange(user string) Change {
	return Change{Type: Insert, Table: "chores", Record: map[string]any{"id": "r1", "user_id": user}}
}

func TestHubRoutesByTopic(t *testing.T) {
	h := NewHub(4, nil)
	defer h.Close()

	mine := h.NewSubscriber()
	other := h.NewSubscriber()
	h.Join(mine, Topic("chores", "user_id", "u1"))
	h.Join(other, Topic("chores", "user_id", "u2"))

	require.NoError(t, h.Publish(context.Background(), choreChange("u1")))

	select {
	case msg := <-mine.C():
		assert.Equal(t, EventChanges, msg.Event)
		var c Change
		require.NoError(t, json.Unmarshal(msg.Payload, &c))
		assert.Equal(t, "r1", c.RecordID())
	default:
		t.Fatal("subscriber of u1 got nothing")
	}
	assert.Len(t, other.C(), 0)
}

func TestHubLeave(t *testing.T) {
	h := NewHub(4, nil)
	defer h.Close()

	s := h.NewSubscriber()
	topic := Topic("chores", "user_id", "u1")
	h.Join(s, topic)
	assert.Equal(t, 1, h.Subscribers(topic))
	h.Leave(s, topic)
	assert.Equal(t, 0, h.Subscribers(topic))

	require.NoError(t, h.Publish(context.Background(), choreChange("u1")))
	assert.Len(t, s.C(), 0)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(1, nil)
	defer h.Close()

	slow := h.NewSubscriber()
	topic := Topic("chores", "user_id", "u1")
	h.Join(slow, topic)

	ctx := context.Background()
	require.NoError(t, h.Publish(ctx, choreChange("u1")))
	require.NoError(t, h.Publish(ctx, choreChange("u1")))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber was not dropped")
	}
	assert.Equal(t, 0, h.Subscribers(topic))
}

func TestHubClose(t *testing.T) {
	h := NewHub(1, nil)
	s := h.NewSubscriber()
	h.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("subscriber survived Close")
	}

	late := h.NewSubscriber()
	select {
	case <-late.Done():
	default:
		t.Fatal("subscriber created after Close is open")
	}
}
