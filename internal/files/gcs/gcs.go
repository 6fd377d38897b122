// Package gcs is the Google Cloud Storage backend for uploads. All logical
// buckets share one GCS bucket and become object name prefixes.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ordem/internal/files"
	"ordem/internal/googleauth"
	applog "ordem/internal/log"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"
)

type Store struct {
	svc    *gstorage.Service
	bucket string
}

var _ files.Store = (*Store)(nil)

// New builds a backend using service account credentials.
func New(ctx context.Context, bucket string, creds googleauth.Credentials) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("missing GCS bucket")
	}
	opts, err := creds.Options(ctx, gstorage.DevstorageReadWriteScope)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, bucket, opts...)
}

// NewWithOptions is New with caller supplied client options.
func NewWithOptions(ctx context.Context, bucket string, opts ...goption.ClientOption) (*Store, error) {
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentFiles).Info("Cloud Storage backend ready", "bucket", bucket)
	return &Store{svc: svc, bucket: bucket}, nil
}

// ObjectName maps a logical bucket and key to the GCS object name.
func ObjectName(bucket, key string) string {
	return bucket + "/" + key
}

func (s *Store) Put(ctx context.Context, bucket, key, contentType string, body io.Reader, _ int64) error {
	obj := &gstorage.Object{Name: ObjectName(bucket, key), ContentType: contentType}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(body, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	return mapError(err)
}

func (s *Store) Open(ctx context.Context, bucket, key string) (files.Object, error) {
	resp, err := s.svc.Objects.Get(s.bucket, ObjectName(bucket, key)).Context(ctx).Download()
	if err != nil {
		return files.Object{}, mapError(err)
	}
	return files.Object{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return mapError(s.svc.Objects.Delete(s.bucket, ObjectName(bucket, key)).Context(ctx).Do())
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return files.ErrNotFound
	}
	return err
}
