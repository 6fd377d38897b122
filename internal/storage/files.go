package storage

import (
	"context"
	"fmt"
	"time"
)

// FileRecord is the metadata row of an uploaded object.
type FileRecord struct {
	ID          string
	UserID      string
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

func (s *Store) InsertFile(ctx context.Context, f FileRecord) (FileRecord, error) {
	f.ID = newID()
	f.CreatedAt = s.now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO files (id, user_id, bucket, object_key, content_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, object_key) DO UPDATE SET
			content_type = excluded.content_type, size_bytes = excluded.size_bytes, created_at = excluded.created_at`,
		f.ID, f.UserID, f.Bucket, f.Key, f.ContentType, f.Size, formatTime(f.CreatedAt))
	if err != nil {
		return FileRecord{}, fmt.Errorf("insert file: %w", translate(err))
	}
	return f, nil
}

func (s *Store) GetFile(ctx context.Context, bucket, key string) (FileRecord, error) {
	var (
		f       FileRecord
		created string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, bucket, object_key, content_type, size_bytes, created_at
		FROM files WHERE bucket = ? AND object_key = ?`, bucket, key).
		Scan(&f.ID, &f.UserID, &f.Bucket, &f.Key, &f.ContentType, &f.Size, &created)
	if err != nil {
		return FileRecord{}, translate(err)
	}
	f.CreatedAt = parseTime(created)
	return f, nil
}

func (s *Store) DeleteFile(ctx context.Context, bucket, key string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM files WHERE bucket = ? AND object_key = ?`, bucket, key)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return requireAffected(res)
}
