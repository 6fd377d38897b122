package realtime

import (
	"context"
	"fmt"
)

// Authorizer decides whether a user may join a topic.
type Authorizer interface {
	CanJoin(ctx context.Context, userID, topic string) (bool, error)
}

// ParticipantChecker reports whether a user takes part in a conversation.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// TopicAuthorizer allows owner topics for the owner only and conversation
// topics for participants only.
type TopicAuthorizer struct {
	Participants ParticipantChecker
}

func (a TopicAuthorizer) CanJoin(ctx context.Context, userID, topic string) (bool, error) {
	_, column, value, err := ParseTopic(topic)
	if err != nil {
		return false, err
	}
	switch column {
	case "user_id":
		return value == userID, nil
	case "conversation_id":
		if a.Participants == nil {
			return false, nil
		}
		ok, err := a.Participants.IsParticipant(ctx, value, userID)
		if err != nil {
			return false, fmt.Errorf("check participant: %w", err)
		}
		return ok, nil
	}
	return false, nil
}
