package services

import (
	"context"
	"fmt"

	"ordem/internal/log"
	"ordem/internal/metrics"
	"ordem/internal/realtime"
	"ordem/internal/resource"
	"ordem/internal/storage"
)

// RecordService runs the generic CRUD operations of every resource definition
// and publishes the resulting changes.
type RecordService struct {
	store     *storage.Store
	publisher realtime.Publisher
	metrics   *metrics.Metrics
}

func NewRecordService(store *storage.Store, publisher realtime.Publisher, m *metrics.Metrics) *RecordService {
	return &RecordService{store: store, publisher: publisher, metrics: m}
}

func owner(def *resource.Definition, userID string) string {
	if def.Scope == resource.ScopeGlobal {
		return ""
	}
	return userID
}

// List returns the rows of def. Child resources are narrowed to parentID when
// it is set.
func (s *RecordService) List(ctx context.Context, def *resource.Definition, userID, parentID string) ([]storage.Row, error) {
	var filters []storage.Filter
	if def.Parent != nil && parentID != "" {
		filters = append(filters, storage.Eq(def.Parent.Field, parentID))
	}
	rows, err := s.store.ListRows(ctx, def.StorageTable(), owner(def, userID), filters...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", def.Name, err)
	}
	return rows, nil
}

func (s *RecordService) Get(ctx context.Context, def *resource.Definition, userID, id string) (storage.Row, error) {
	return s.store.GetRow(ctx, def.StorageTable(), owner(def, userID), id)
}

// Create stores a new row. For child resources the parent must exist and
// belong to the user.
func (s *RecordService) Create(ctx context.Context, def *resource.Definition, userID string, values resource.Values, parentID string) (storage.Row, error) {
	if def.Parent != nil {
		if err := s.checkParent(ctx, def, userID, parentID); err != nil {
			return storage.Row{}, err
		}
		values[def.Parent.Field] = parentID
	}

	row, err := s.store.InsertRow(ctx, def.StorageTable(), owner(def, userID), values)
	if err != nil {
		return storage.Row{}, fmt.Errorf("create %s: %w", def.Name, err)
	}
	s.metrics.RecordMutation(def.Table, log.OpCreate)
	log.LogMutation(ctx, log.OpCreate, def.Table, row.ID, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Insert, Table: def.Table, Record: RowRecord(row)})
	return row, nil
}

func (s *RecordService) checkParent(ctx context.Context, def *resource.Definition, userID, parentID string) error {
	parent, ok := resource.Lookup(def.Parent.Resource)
	if !ok {
		return fmt.Errorf("resource %s has unknown parent %s", def.Name, def.Parent.Resource)
	}
	if parentID == "" {
		return resource.FieldErrors{def.Parent.Field: "registro pai ausente"}
	}
	if _, err := s.store.GetRow(ctx, parent.StorageTable(), owner(parent, userID), parentID); err != nil {
		return fmt.Errorf("parent %s: %w", parent.Name, err)
	}
	return nil
}

func (s *RecordService) Update(ctx context.Context, def *resource.Definition, userID, id string, values resource.Values) (storage.Row, error) {
	before, after, err := s.store.UpdateRow(ctx, def.StorageTable(), owner(def, userID), id, values)
	if err != nil {
		return storage.Row{}, fmt.Errorf("update %s: %w", def.Name, err)
	}
	s.metrics.RecordMutation(def.Table, log.OpUpdate)
	log.LogMutation(ctx, log.OpUpdate, def.Table, id, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Update, Table: def.Table,
		Record: RowRecord(after), OldRecord: RowRecord(before)})
	return after, nil
}

// Toggle flips a bool field of the row.
func (s *RecordService) Toggle(ctx context.Context, def *resource.Definition, userID, id, field string) (storage.Row, error) {
	f, ok := def.Field(field)
	if !ok || f.Kind != resource.Bool {
		return storage.Row{}, resource.FieldErrors{field: "campo não alternável"}
	}
	before, after, err := s.store.ToggleRow(ctx, def.StorageTable(), owner(def, userID), id, field)
	if err != nil {
		return storage.Row{}, fmt.Errorf("toggle %s.%s: %w", def.Name, field, err)
	}
	s.metrics.RecordMutation(def.Table, log.OpToggle)
	log.LogMutation(ctx, log.OpToggle, def.Table, id, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Update, Table: def.Table,
		Record: RowRecord(after), OldRecord: RowRecord(before)})
	return after, nil
}

func (s *RecordService) Delete(ctx context.Context, def *resource.Definition, userID, id string) error {
	deleted, err := s.store.DeleteRow(ctx, def.StorageTable(), owner(def, userID), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", def.Name, err)
	}
	s.metrics.RecordMutation(def.Table, log.OpDelete)
	log.LogMutation(ctx, log.OpDelete, def.Table, id, userID)
	publish(ctx, s.publisher, realtime.Change{Type: realtime.Delete, Table: def.Table, OldRecord: RowRecord(deleted)})
	return nil
}
