package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordem/internal/core"
)

func TestMessagesAdvanceLastSeq(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	conv, err := s.CreateConversation(ctx, core.Conversation{Kind: core.ConversationDirect, CreatedBy: ana.ID},
		core.DirectKey(ana.ID, bia.ID), []string{ana.ID, bia.ID})
	require.NoError(t, err)

	found, err := s.FindDirectConversation(ctx, core.DirectKey(bia.ID, ana.ID))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	for seq, body := range []string{"oi", "tudo bem?", "oi"} {
		_, err := s.InsertMessage(ctx, core.Message{ConversationID: conv.ID, SenderID: ana.ID,
			Seq: int64(seq + 1), Body: body, ClientNonce: body + string(rune('a'+seq))})
		require.NoError(t, err)
	}

	last, err := s.LastSeq(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, last)

	msgs, err := s.ListMessagesAfter(ctx, conv.ID, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 2, msgs[0].Seq)
	assert.EqualValues(t, 3, msgs[1].Seq)

	recent, err := s.ListRecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.EqualValues(t, 2, recent[0].Seq)

	// Reusing a sequence number conflicts.
	_, err = s.InsertMessage(ctx, core.Message{ConversationID: conv.ID, SenderID: bia.ID, Seq: 3, Body: "x"})
	assert.ErrorIs(t, err, ErrConflict)

	byNonce, err := s.FindMessageByNonce(ctx, conv.ID, ana.ID, "tudo bem?b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, byNonce.Seq)
}

func TestUnreadAndMarkRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	conv, err := s.CreateConversation(ctx, core.Conversation{Kind: core.ConversationDirect, CreatedBy: ana.ID},
		core.DirectKey(ana.ID, bia.ID), []string{ana.ID, bia.ID})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := s.InsertMessage(ctx, core.Message{ConversationID: conv.ID, SenderID: ana.ID, Seq: int64(i), Body: "m"})
		require.NoError(t, err)
	}

	unread, err := s.UnreadTotal(ctx, bia.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	mine, err := s.UnreadTotal(ctx, ana.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, mine)

	marker, err := s.MarkRead(ctx, conv.ID, bia.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marker)

	// The marker never goes backwards and never passes last_seq.
	marker, err = s.MarkRead(ctx, conv.ID, bia.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marker)
	marker, err = s.MarkRead(ctx, conv.ID, bia.ID, 99)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marker)

	sums, err := s.ListConversationSummaries(ctx, bia.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.EqualValues(t, 0, sums[0].Unread)
	require.NotNil(t, sums[0].LastMessage)
	assert.EqualValues(t, 3, sums[0].LastMessage.Seq)
	require.Len(t, sums[0].Peers, 1)
	assert.Equal(t, "Ana", sums[0].Peers[0].DisplayName)
}

func TestFeedAndLikes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	post, err := s.InsertPost(ctx, core.Post{UserID: bia.ID, Content: "bom dia"})
	require.NoError(t, err)

	feed, err := s.Feed(ctx, ana.ID, 20)
	require.NoError(t, err)
	assert.Empty(t, feed)

	following, err := s.ToggleFollow(ctx, ana.ID, bia.ID)
	require.NoError(t, err)
	assert.True(t, following)

	liked, err := s.ToggleLike(ctx, ana.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	feed, err = s.Feed(ctx, ana.ID, 20)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, feed[0].Likes)
	assert.True(t, feed[0].LikedByMe)
	assert.False(t, feed[0].Mine)
	assert.Equal(t, "Bia", feed[0].AuthorName)

	_, err = s.ToggleFollow(ctx, ana.ID, ana.ID)
	assert.ErrorIs(t, err, core.ErrFollowSelf)

	_, err = s.DeletePost(ctx, ana.ID, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdatePost(ctx, ana.ID, post.ID, "hack"), ErrNotFound)
}
