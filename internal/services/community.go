package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ordem/internal/core"
	"ordem/internal/files"
	"ordem/internal/log"
	"ordem/internal/metrics"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

const (
	postsTable   = "posts"
	feedPageSize = 50
)

// Person is a search result decorated with the viewer's follow state.
type Person struct {
	core.Account
	Following bool
}

// CommunityService covers posts, likes, follows and events.
type CommunityService struct {
	store     *storage.Store
	files     *files.Service
	publisher realtime.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCommunityService(store *storage.Store, fs *files.Service, pub realtime.Publisher, m *metrics.Metrics) *CommunityService {
	return &CommunityService{store: store, files: fs, publisher: pub, metrics: m, now: time.Now}
}

func (s *CommunityService) Feed(ctx context.Context, viewerID string) ([]core.FeedItem, error) {
	return s.store.Feed(ctx, viewerID, feedPageSize)
}

// CreatePost stores a post. image may be nil.
func (s *CommunityService) CreatePost(ctx context.Context, userID, content string, image io.Reader) (core.Post, error) {
	content, err := core.ValidatePostContent(content)
	if err != nil {
		return core.Post{}, err
	}
	var imagePath string
	if image != nil {
		if s.files == nil {
			return core.Post{}, errors.New("file storage not configured")
		}
		rec, err := s.files.Upload(ctx, userID, files.BucketPosts, image)
		if err != nil {
			return core.Post{}, err
		}
		imagePath = files.Path(rec.Bucket, rec.Key)
	}
	p, err := s.store.InsertPost(ctx, core.Post{UserID: userID, Content: content, ImagePath: imagePath})
	if err != nil {
		return core.Post{}, err
	}
	s.metrics.RecordMutation(postsTable, log.OpCreate)
	log.LogMutation(ctx, log.OpCreate, postsTable, p.ID, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Insert, Table: postsTable, Record: PostRecord(p)})
	return p, nil
}

func (s *CommunityService) UpdatePost(ctx context.Context, userID, id, content string) (core.Post, error) {
	content, err := core.ValidatePostContent(content)
	if err != nil {
		return core.Post{}, err
	}
	before, err := s.store.GetPost(ctx, id)
	if err != nil {
		return core.Post{}, err
	}
	if err := s.store.UpdatePost(ctx, userID, id, content); err != nil {
		return core.Post{}, err
	}
	after, err := s.store.GetPost(ctx, id)
	if err != nil {
		return core.Post{}, err
	}
	s.metrics.RecordMutation(postsTable, log.OpUpdate)
	log.LogMutation(ctx, log.OpUpdate, postsTable, id, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Update, Table: postsTable,
		Record: PostRecord(after), OldRecord: PostRecord(before)})
	return after, nil
}

// DeletePost removes the author's post and its image.
func (s *CommunityService) DeletePost(ctx context.Context, userID, id string) error {
	p, err := s.store.DeletePost(ctx, userID, id)
	if err != nil {
		return err
	}
	if bucket, key, ok := files.KeyFromPath(p.ImagePath); ok && s.files != nil {
		if err := s.files.Remove(ctx, userID, bucket, key); err != nil && !errors.Is(err, files.ErrNotFound) {
			log.FromContext(ctx).WithComponent(log.ComponentFiles).Warn("Failed to remove post image",
				log.FieldRecordID, id, log.FieldError, err)
		}
	}
	s.metrics.RecordMutation(postsTable, log.OpDelete)
	log.LogMutation(ctx, log.OpDelete, postsTable, id, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Delete, Table: postsTable, OldRecord: PostRecord(p)})
	return nil
}

func (s *CommunityService) ToggleLike(ctx context.Context, userID, postID string) (bool, error) {
	liked, err := s.store.ToggleLike(ctx, userID, postID)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	s.metrics.RecordMutation("post_likes", log.OpToggle)
	return liked, nil
}

func (s *CommunityService) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if _, err := s.store.GetAccount(ctx, followeeID); err != nil {
		return false, err
	}
	following, err := s.store.ToggleFollow(ctx, followerID, followeeID)
	if err != nil {
		return false, err
	}
	s.metrics.RecordMutation("follows", log.OpToggle)
	return following, nil
}

// Events lists events from today on.
func (s *CommunityService) Events(ctx context.Context, viewerID string) ([]core.EventItem, error) {
	return s.store.ListEvents(ctx, viewerID, s.now().Format("2006-01-02"))
}

func (s *CommunityService) ToggleEvent(ctx context.Context, userID, eventID string) (bool, error) {
	joined, err := s.store.ToggleEventParticipation(ctx, userID, eventID)
	if err != nil {
		return false, err
	}
	s.metrics.RecordMutation("event_participants", log.OpToggle)
	return joined, nil
}

// People searches other users; an empty query lists everyone up to the limit.
func (s *CommunityService) People(ctx context.Context, viewerID, query string) ([]Person, error) {
	accounts, err := s.store.SearchProfiles(ctx, query, viewerID, 30)
	if err != nil {
		return nil, err
	}
	following, err := s.store.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	out := make([]Person, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, Person{Account: a, Following: following[a.ID]})
	}
	return out, nil
}

func PostRecord(p core.Post) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"user_id":    p.UserID,
		"content":    p.Content,
		"image_path": p.ImagePath,
		"created_at": p.CreatedAt,
		"updated_at": p.UpdatedAt,
	}
}
