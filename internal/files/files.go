// Package files stores user uploads (avatars and post images) behind a small
// object-store interface with local and Google Cloud Storage backends.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	applog "ordem/internal/log"
	"ordem/internal/storage"

	"github.com/google/uuid"
)

const (
	BucketAvatars = "avatars"
	BucketPosts   = "posts"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnknownBucket   = errors.New("unknown bucket")
	ErrEmpty           = errors.New("empty file")
	ErrInvalidKey      = errors.New("invalid object key")
)

// allowed maps sniffed content types to the extension used in object keys.
var allowed = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object is an opened stored file. Callers close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store is the object storage backend.
type Store interface {
	Put(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, bucket, key string) (Object, error)
	Delete(ctx context.Context, bucket, key string) error
}

// MetadataStore keeps one row per stored object.
type MetadataStore interface {
	InsertFile(ctx context.Context, f storage.FileRecord) (storage.FileRecord, error)
	GetFile(ctx context.Context, bucket, key string) (storage.FileRecord, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// ValidBucket reports whether name is one of the upload buckets.
func ValidBucket(name string) bool {
	return name == BucketAvatars || name == BucketPosts
}

// ValidKey rejects keys that could escape a bucket.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Sniff returns the content type and extension of an allowed image.
func Sniff(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrEmpty
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ext, ok := allowed[ct]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return ct, ext, nil
}

// Path is the URL under which an object is served.
func Path(bucket, key string) string {
	return "/files/" + bucket + "/" + key
}

type Service struct {
	store    Store
	meta     MetadataStore
	maxBytes int64
}

func NewService(store Store, meta MetadataStore, maxBytes int64) *Service {
	return &Service{store: store, meta: meta, maxBytes: maxBytes}
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload validates body and stores it under <userID>/<uuid>.<ext>.
func (s *Service) Upload(ctx context.Context, userID, bucket string, body io.Reader) (storage.FileRecord, error) {
	if !ValidBucket(bucket) {
		return storage.FileRecord{}, ErrUnknownBucket
	}
	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return storage.FileRecord{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return storage.FileRecord{}, ErrTooLarge
	}
	ct, ext, err := Sniff(data)
	if err != nil {
		return storage.FileRecord{}, err
	}

	key := userID + "/" + uuid.NewString() + ext
	if err := s.store.Put(ctx, bucket, key, ct, bytes.NewReader(data), int64(len(data))); err != nil {
		return storage.FileRecord{}, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	rec, err := s.meta.InsertFile(ctx, storage.FileRecord{
		UserID: userID, Bucket: bucket, Key: key, ContentType: ct, Size: int64(len(data)),
	})
	if err != nil {
		// The object is unreachable without its row.
		_ = s.store.Delete(ctx, bucket, key)
		return storage.FileRecord{}, err
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentFiles).Info("File uploaded",
		"bucket", bucket, "key", key, "content_type", ct, "size", len(data))
	return rec, nil
}

// Open returns the stored object; unknown rows are ErrNotFound.
func (s *Service) Open(ctx context.Context, bucket, key string) (Object, error) {
	if !ValidBucket(bucket) || !ValidKey(key) {
		return Object{}, ErrNotFound
	}
	rec, err := s.meta.GetFile(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}
	obj, err := s.store.Open(ctx, bucket, key)
	if err != nil {
		return Object{}, err
	}
	if rec.ContentType != "" {
		obj.ContentType = rec.ContentType
	}
	return obj, nil
}

// Remove deletes an object owned by userID.
func (s *Service) Remove(ctx context.Context, userID, bucket, key string) error {
	rec, err := s.meta.GetFile(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if rec.UserID != userID {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, bucket, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.meta.DeleteFile(ctx, bucket, key)
}

// KeyFromPath extracts bucket and key from a Path result.
func KeyFromPath(p string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(p, "/files/")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || !ValidBucket(bucket) || !ValidKey(key) {
		return "", "", false
	}
	return bucket, key, true
}
