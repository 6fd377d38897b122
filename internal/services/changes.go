package services

import (
	"context"
	"time"

	"ordem/internal/log"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

// publish hands the change to the feed. The write is already committed, so a
// failure is logged and never returned to the caller.
func publish(ctx context.Context, pub realtime.Publisher, c realtime.Change) {
	if pub == nil {
		return
	}
	if c.CommitTimestamp.IsZero() {
		c.CommitTimestamp = time.Now().UTC()
	}
	if err := pub.Publish(ctx, c); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentRealtime).WarnContext(ctx, "Failed to publish change",
			log.FieldTable, c.Table,
			log.FieldRecordID, c.RecordID(),
			log.FieldError, err)
	}
}

// RowRecord renders a generic row in the change feed shape.
func RowRecord(row storage.Row) map[string]any {
	rec := make(map[string]any, len(row.Values)+4)
	for k, v := range row.Values {
		rec[k] = v
	}
	rec["id"] = row.ID
	if row.OwnerID != "" {
		rec["user_id"] = row.OwnerID
	}
	rec["created_at"] = row.CreatedAt
	rec["updated_at"] = row.UpdatedAt
	return rec
}
