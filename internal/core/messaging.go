package core

import (
	"errors"
	"strings"
	"time"
)

const MaxMessageLength = 4000

var (
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body too long")
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

type (
	Conversation struct {
		ID        string
		Kind      ConversationKind
		Title     string
		CreatedBy string
		LastSeq   int64
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Participant struct {
		ConversationID string
		UserID         string
		DisplayName    string
		LastReadSeq    int64
		JoinedAt       time.Time
	}

	// Message is a durably stored chat message. Seq is assigned by the
	// conversation's writer and is strictly increasing within a conversation.
	Message struct {
		ID             string    `json:"id"`
		ConversationID string    `json:"conversation_id"`
		SenderID       string    `json:"sender_id"`
		Seq            int64     `json:"seq"`
		Body           string    `json:"body"`
		ClientNonce    string    `json:"client_nonce,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
	}

	// ConversationSummary is one sidebar entry for a participant.
	ConversationSummary struct {
		Conversation
		Peers       []Participant
		LastMessage *Message
		Unread      int64
	}
)

// ValidateMessageBody trims body and enforces the length limits.
func ValidateMessageBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(body)) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return body, nil
}

// DirectKey is the canonical key of the direct conversation between a and b.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
