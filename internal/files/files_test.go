package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"ordem/internal/core"
	"ordem/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func setup(t *testing.T, maxBytes int64) (*Service, *storage.Store, string) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	acc, err := store.CreateAccount(context.Background(),
		core.User{Email: "ana@example.com", PasswordHash: "x"},
		core.Profile{DisplayName: "Ana", Role: core.RoleUser},
		core.Subscription{Status: core.StatusTrialing})
	require.NoError(t, err)

	local, err := NewLocal(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	return NewService(local, store, maxBytes), store, acc.ID
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		ct, ext string
		wantErr error
	}{
		{"png", pngHeader, "image/png", ".png", nil},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF"), "image/jpeg", ".jpg", nil},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), "image/gif", ".gif", nil},
		{"text", []byte("hello world"), "", "", ErrUnsupportedType},
		{"html", []byte("<html><script>x</script>"), "", "", ErrUnsupportedType},
		{"empty", nil, "", "", ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, ext, err := Sniff(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ct, ct)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("u1/abc.png"))
	for _, k := range []string{"", "/abs", "../x", "u1/../../etc", "a//b", `a\b`, "./a"} {
		assert.False(t, ValidKey(k), k)
	}
}

func TestUploadOpenRemove(t *testing.T) {
	svc, store, userID := setup(t, 1024)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, userID, BucketAvatars, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Key, userID+"/"))
	assert.True(t, strings.HasSuffix(rec.Key, ".png"))
	assert.Equal(t, "image/png", rec.ContentType)

	obj, err := svc.Open(ctx, BucketAvatars, rec.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(obj.Body)
	obj.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, pngHeader, body)
	assert.Equal(t, "image/png", obj.ContentType)

	bucket, key, ok := KeyFromPath(Path(BucketAvatars, rec.Key))
	require.True(t, ok)
	assert.Equal(t, BucketAvatars, bucket)
	assert.Equal(t, rec.Key, key)

	assert.ErrorIs(t, svc.Remove(ctx, "someone-else", BucketAvatars, rec.Key), ErrNotFound)
	require.NoError(t, svc.Remove(ctx, userID, BucketAvatars, rec.Key))

	_, err = svc.Open(ctx, BucketAvatars, rec.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetFile(ctx, BucketAvatars, rec.Key)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUploadRejects(t *testing.T) {
	svc, _, userID := setup(t, 64)
	ctx := context.Background()

	_, err := svc.Upload(ctx, userID, "secrets", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrUnknownBucket)

	big := append(append([]byte{}, pngHeader...), make([]byte, 100)...)
	_, err = svc.Upload(ctx, userID, BucketPosts, bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(ctx, userID, BucketPosts, strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestOpenRejectsTraversal(t *testing.T) {
	svc, _, _ := setup(t, 1024)
	_, err := svc.Open(context.Background(), BucketAvatars, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}
