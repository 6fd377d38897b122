package core

import (
	"errors"
	"strings"
	"time"
)

const MaxPostLength = 2000

var (
	ErrEmptyPost   = errors.New("post content is empty")
	ErrPostTooLong = errors.New("post content too long")
	ErrFollowSelf  = errors.New("cannot follow yourself")
)

type (
	Post struct {
		ID        string
		UserID    string
		Content   string
		ImagePath string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// FeedItem is a post decorated for the viewer.
	FeedItem struct {
		Post
		AuthorName   string
		AuthorAvatar string
		Likes        int
		LikedByMe    bool
		Mine         bool
	}
)

// ValidatePostContent trims content and enforces the length limits.
func ValidatePostContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyPost
	}
	if len([]rune(content)) > MaxPostLength {
		return "", ErrPostTooLong
	}
	return content, nil
}

// EventItem is a community event decorated for the viewer.
type EventItem struct {
	ID           string
	OwnerID      string
	OwnerName    string
	Title        string
	Description  string
	StartsAt     string
	Location     string
	Participants int
	Joined       bool
}
