package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"ordem/internal/core"
	"ordem/internal/files"
	"ordem/internal/log"
	"ordem/internal/storage"
)

const (
	maxDisplayName = 80
	maxBio         = 500
)

var (
	ErrDisplayNameRequired = errors.New("display name is required")
	ErrProfileTooLong      = errors.New("profile field too long")
)

type ProfileService struct {
	store *storage.Store
	files *files.Service
}

func NewProfileService(store *storage.Store, fs *files.Service) *ProfileService {
	return &ProfileService{store: store, files: fs}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (core.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

func (s *ProfileService) Update(ctx context.Context, userID, displayName, bio string) error {
	displayName = strings.TrimSpace(displayName)
	bio = strings.TrimSpace(bio)
	if displayName == "" {
		return ErrDisplayNameRequired
	}
	if utf8.RuneCountInString(displayName) > maxDisplayName || utf8.RuneCountInString(bio) > maxBio {
		return ErrProfileTooLong
	}
	if err := s.store.UpdateProfile(ctx, userID, displayName, bio); err != nil {
		return err
	}
	log.LogMutation(ctx, log.OpUpdate, "profiles", userID, userID)
	return nil
}

// SetAvatar uploads a new avatar and removes the previous one.
func (s *ProfileService) SetAvatar(ctx context.Context, userID string, body io.Reader) (string, error) {
	rec, err := s.files.Upload(ctx, userID, files.BucketAvatars, body)
	if err != nil {
		return "", err
	}
	path := files.Path(rec.Bucket, rec.Key)
	previous, err := s.store.SetAvatar(ctx, userID, path)
	if err != nil {
		return "", err
	}
	if bucket, key, ok := files.KeyFromPath(previous); ok {
		if err := s.files.Remove(ctx, userID, bucket, key); err != nil && !errors.Is(err, files.ErrNotFound) {
			log.FromContext(ctx).WithComponent(log.ComponentFiles).Warn("Failed to remove previous avatar",
				"path", previous, log.FieldError, err)
		}
	}
	log.LogMutation(ctx, log.OpUpdate, "profiles", userID, userID)
	return path, nil
}
