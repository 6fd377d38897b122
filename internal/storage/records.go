package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ColumnKind is the sqlite storage class of a column.
type ColumnKind int

const (
	ColText ColumnKind = iota
	ColInt
	ColReal
	ColBool
)

type Column struct {
	Name string
	Kind ColumnKind
}

// Table describes a table served by the generic row API. Tables are declared
// statically in code; identifiers in it are never taken from requests.
type Table struct {
	Name    string
	Columns []Column
	// Owned tables carry a user_id column and every query is scoped by it.
	Owned bool
	// OrderBy is a static ORDER BY clause body.
	OrderBy string
}

// Row is one generic record. Values holds string, int64, float64, bool or nil
// per the column kind.
type Row struct {
	ID        string
	OwnerID   string
	Values    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter is a comparison on one column of the table.
type Filter struct {
	Column string
	Op     string // =, <>, >=, <=, >, <
	Value  any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: "=", Value: value}
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) selectList() string {
	cols := []string{"id"}
	if t.Owned {
		cols = append(cols, "user_id")
	}
	for _, c := range t.Columns {
		cols = append(cols, quote(c.Name))
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func bindValue(c Column, v any) any {
	if v == nil {
		if c.Kind == ColText {
			return ""
		}
		if c.Kind == ColBool {
			return int64(0)
		}
		return nil
	}
	if b, ok := v.(bool); ok {
		return boolToInt(b)
	}
	return v
}

func (t Table) scan(scanner interface{ Scan(...any) error }) (Row, error) {
	var (
		id, owner, created, updated string
		dest                        = []any{&id}
	)
	if t.Owned {
		dest = append(dest, &owner)
	}
	holders := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Kind {
		case ColText:
			holders[i] = new(sql.NullString)
		case ColReal:
			holders[i] = new(sql.NullFloat64)
		default:
			holders[i] = new(sql.NullInt64)
		}
	}
	dest = append(dest, holders...)
	dest = append(dest, &created, &updated)
	if err := scanner.Scan(dest...); err != nil {
		return Row{}, err
	}

	row := Row{ID: id, OwnerID: owner, Values: make(map[string]any, len(t.Columns)),
		CreatedAt: parseTime(created), UpdatedAt: parseTime(updated)}
	for i, c := range t.Columns {
		switch h := holders[i].(type) {
		case *sql.NullString:
			row.Values[c.Name] = h.String
		case *sql.NullFloat64:
			if h.Valid {
				row.Values[c.Name] = h.Float64
			} else {
				row.Values[c.Name] = nil
			}
		case *sql.NullInt64:
			switch {
			case c.Kind == ColBool:
				row.Values[c.Name] = h.Valid && h.Int64 != 0
			case h.Valid:
				row.Values[c.Name] = h.Int64
			default:
				row.Values[c.Name] = nil
			}
		}
	}
	return row, nil
}

func (t Table) where(owner string, filters []Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if t.Owned {
		clauses = append(clauses, "user_id = ?")
		args = append(args, owner)
	}
	for _, f := range filters {
		var kind ColumnKind
		if f.Column == "id" {
			kind = ColText
		} else {
			c, ok := t.column(f.Column)
			if !ok {
				return "", nil, fmt.Errorf("table %s has no column %q", t.Name, f.Column)
			}
			kind = c.Kind
		}
		switch f.Op {
		case "=", "<>", ">=", "<=", ">", "<":
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
		clauses = append(clauses, quote(f.Column)+" "+f.Op+" ?")
		args = append(args, bindValue(Column{Name: f.Column, Kind: kind}, f.Value))
	}
	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// ListRows returns the owner's rows matching every filter, in the table's order.
func (s *Store) ListRows(ctx context.Context, t Table, owner string, filters ...Filter) ([]Row, error) {
	where, args, err := t.where(owner, filters)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + t.selectList() + " FROM " + quote(t.Name) + where
	if t.OrderBy != "" {
		query += " ORDER BY " + t.OrderBy
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountRows counts the owner's rows matching every filter.
func (s *Store) CountRows(ctx context.Context, t Table, owner string, filters ...Filter) (int, error) {
	where, args, err := t.where(owner, filters)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(t.Name)+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return n, nil
}

// GetRow returns one row. Rows of other owners are reported as ErrNotFound.
func (s *Store) GetRow(ctx context.Context, t Table, owner, id string) (Row, error) {
	where, args, err := t.where(owner, []Filter{Eq("id", id)})
	if err != nil {
		return Row{}, err
	}
	row, err := t.scan(s.q.QueryRowContext(ctx, "SELECT "+t.selectList()+" FROM "+quote(t.Name)+where, args...))
	if err != nil {
		return Row{}, translate(err)
	}
	return row, nil
}

// InsertRow stores a new row for owner. Columns missing from values get their
// zero value.
func (s *Store) InsertRow(ctx context.Context, t Table, owner string, values map[string]any) (Row, error) {
	now := formatTime(s.now())
	cols := []string{"id"}
	args := []any{newID()}
	if t.Owned {
		cols = append(cols, "user_id")
		args = append(args, owner)
	}
	for _, c := range t.Columns {
		cols = append(cols, quote(c.Name))
		args = append(args, bindValue(c, values[c.Name]))
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := "INSERT INTO " + quote(t.Name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return Row{}, fmt.Errorf("insert %s: %w", t.Name, translate(err))
	}
	return s.GetRow(ctx, t, owner, args[0].(string))
}

// UpdateRow overwrites the columns present in values and returns the row
// before and after the write.
func (s *Store) UpdateRow(ctx context.Context, t Table, owner, id string, values map[string]any) (Row, Row, error) {
	var before, after Row
	err := s.Tx(ctx, func(tx *Store) error {
		var err error
		if before, err = tx.GetRow(ctx, t, owner, id); err != nil {
			return err
		}

		var (
			sets []string
			args []any
		)
		for _, c := range t.Columns {
			v, ok := values[c.Name]
			if !ok {
				continue
			}
			sets = append(sets, quote(c.Name)+" = ?")
			args = append(args, bindValue(c, v))
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(tx.now()))

		where, whereArgs, err := t.where(owner, []Filter{Eq("id", id)})
		if err != nil {
			return err
		}
		args = append(args, whereArgs...)
		res, err := tx.q.ExecContext(ctx, "UPDATE "+quote(t.Name)+" SET "+strings.Join(sets, ", ")+where, args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", t.Name, translate(err))
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		after, err = tx.GetRow(ctx, t, owner, id)
		return err
	})
	return before, after, err
}

// ToggleRow flips a bool column and returns the row before and after.
func (s *Store) ToggleRow(ctx context.Context, t Table, owner, id, column string) (Row, Row, error) {
	c, ok := t.column(column)
	if !ok || c.Kind != ColBool {
		return Row{}, Row{}, fmt.Errorf("table %s has no bool column %q", t.Name, column)
	}
	var before, after Row
	err := s.Tx(ctx, func(tx *Store) error {
		var err error
		if before, err = tx.GetRow(ctx, t, owner, id); err != nil {
			return err
		}
		current, _ := before.Values[column].(bool)
		before, after, err = tx.UpdateRow(ctx, t, owner, id, map[string]any{column: !current})
		return err
	})
	return before, after, err
}

// DeleteRow removes a row and returns its last state.
func (s *Store) DeleteRow(ctx context.Context, t Table, owner, id string) (Row, error) {
	var deleted Row
	err := s.Tx(ctx, func(tx *Store) error {
		var err error
		if deleted, err = tx.GetRow(ctx, t, owner, id); err != nil {
			return err
		}
		where, args, err := t.where(owner, []Filter{Eq("id", id)})
		if err != nil {
			return err
		}
		res, err := tx.q.ExecContext(ctx, "DELETE FROM "+quote(t.Name)+where, args...)
		if err != nil {
			return fmt.Errorf("delete %s: %w", t.Name, translate(err))
		}
		return requireAffected(res)
	})
	return deleted, err
}
