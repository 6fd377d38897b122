package gcs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ordem/internal/files"

	"google.golang.org/api/googleapi"
)

func TestObjectName(t *testing.T) {
	if got := ObjectName(files.BucketAvatars, "u1/a.png"); got != "avatars/u1/a.png" {
		t.Fatalf("ObjectName = %q", got)
	}
}

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	notFound := fmt.Errorf("get: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !errors.Is(mapError(notFound), files.ErrNotFound) {
		t.Fatal("404 should map to ErrNotFound")
	}
	forbidden := &googleapi.Error{Code: http.StatusForbidden}
	if errors.Is(mapError(forbidden), files.ErrNotFound) {
		t.Fatal("403 must not map to ErrNotFound")
	}
}
