package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	table, column, value, err := ParseTopic(Topic("messages", "conversation_id", "c1"))
	require.NoError(t, err)
	assert.Equal(t, "messages", table)
	assert.Equal(t, "conversation_id", column)
	assert.Equal(t, "c1", value)

	for _, bad := range []string{"", "phoenix", "realtime:public:messages", "realtime:public:messages:user_id=u1", "realtime:public::user_id=eq.u1"} {
		_, _, _, err := ParseTopic(bad)
		assert.Error(t, err, bad)
	}
}

func TestChangeTopics(t *testing.T) {
	c := Change{
		Type:      Update,
		Table:     "messages",
		Record:    map[string]any{"id": "m1", "conversation_id": "c1", "user_id": "u1"},
		OldRecord: map[string]any{"id": "m1", "conversation_id": "c1", "user_id": "u2"},
	}
	want := []string{
		"realtime:public:messages:user_id=eq.u1",
		"realtime:public:messages:conversation_id=eq.c1",
		"realtime:public:messages:user_id=eq.u2",
	}
	if diff := cmp.Diff(want, c.Topics()); diff != "" {
		t.Errorf("Topics mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "m1", c.RecordID())

	del := Change{Type: Delete, Table: "chores", OldRecord: map[string]any{"id": "x", "user_id": "u1"}}
	assert.Equal(t, []string{"realtime:public:chores:user_id=eq.u1"}, del.Topics())
	assert.Equal(t, "x", del.RecordID())
}

type recorder struct {
	got []Change
	err error
}

func (r *recorder) Publish(_ context.Context, c Change) error {
	r.got = append(r.got, c)
	return r.err
}

func TestPublishersCallsEveryPublisher(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}
	err := Publishers{failing, nil, ok}.Publish(context.Background(), Change{Type: Insert, Table: "chores"})

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

type fakeParticipants map[string]bool

func (f fakeParticipants) IsParticipant(_ context.Context, conv, user string) (bool, error) {
	return f[conv+"/"+user], nil
}

func TestTopicAuthorizer(t *testing.T) {
	a := TopicAuthorizer{Participants: fakeParticipants{"c1/u1": true}}
	ctx := context.Background()

	tests := []struct {
		topic string
		want  bool
	}{
		{Topic("chores", "user_id", "u1"), true},
		{Topic("chores", "user_id", "u2"), false},
		{Topic("messages", "conversation_id", "c1"), true},
		{Topic("messages", "conversation_id", "c2"), false},
		{Topic("messages", "sender_id", "u1"), false},
	}
	for _, tt := range tests {
		got, err := a.CanJoin(ctx, "u1", tt.topic)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.topic)
	}

	_, err := a.CanJoin(ctx, "u1", "garbage")
	assert.Error(t, err)
}
