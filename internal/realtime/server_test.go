package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func bearerUser(r *http.Request) (string, error) {
	user, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || user == "" {
		return "", errors.New("no token")
	}
	return user, nil
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(8, nil)
	mux := http.NewServeMux()
	mux.Handle("/realtime/v1/websocket", &Handler{
		Hub:          hub,
		Authorizer:   TopicAuthorizer{Participants: fakeParticipants{"c1/u1": true}},
		Authenticate: bearerUser,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func waitSubscribers(t *testing.T, hub *Hub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(topic) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestClientReceivesChangesInOrder(t *testing.T) {
	hub, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(srv.URL, "u1")
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	topic := Topic("messages", "conversation_id", "c1")
	got := make(chan int64, 10)
	err := client.Channel(topic).On(Insert, func(c Change) {
		seq, _ := c.Record["seq"].(float64)
		got <- int64(seq)
	}).Subscribe(ctx)
	require.NoError(t, err)
	waitSubscribers(t, hub, topic, 1)

	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, hub.Publish(ctx, Change{Type: Insert, Table: "messages",
			Record: map[string]any{"id": "m", "conversation_id": "c1", "seq": seq}}))
	}

	for want := int64(1); want <= 5; want++ {
		select {
		case seq := <-got:
			assert.Equal(t, want, seq)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for seq %d", want)
		}
	}
}

func TestJoinIsAuthorized(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(srv.URL, "u1")
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	err := client.Channel(Topic("chores", "user_id", "u2")).Subscribe(ctx)
	assert.ErrorContains(t, err, "unauthorized")

	err = client.Channel(Topic("messages", "conversation_id", "c9")).Subscribe(ctx)
	assert.Error(t, err)

	require.NoError(t, client.Channel(Topic("chores", "user_id", "u1")).Subscribe(ctx))
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/realtime/v1/websocket", nil)
	require.NoError(t, err)
	req.Close = true
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	err = NewClient(srv.URL, "").Connect(context.Background())
	assert.Error(t, err)
}

func TestHubCloseEndsClient(t *testing.T) {
	hub, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(srv.URL, "u1")
	require.NoError(t, client.Connect(ctx))
	defer client.Close()
	require.NoError(t, client.Channel(Topic("chores", "user_id", "u1")).Subscribe(ctx))

	hub.Close()
	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("client still connected after hub close")
	}
}
