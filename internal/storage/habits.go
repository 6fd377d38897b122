package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ordem/internal/core"
)

// ListActiveHabits returns the user's habits that are not archived.
func (s *Store) ListActiveHabits(ctx context.Context, userID string) ([]core.Habit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, name, description, color, target_per_week, archived, created_at
		FROM habits WHERE user_id = ? AND archived = 0 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var out []core.Habit
	for rows.Next() {
		var (
			h        core.Habit
			target   sql.NullInt64
			archived int64
			created  string
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.Color, &target, &archived, &created); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		h.TargetPerWeek = int(target.Int64)
		h.Archived = archived != 0
		h.CreatedAt = parseTime(created)
		out = append(out, h)
	}
	return out, rows.Err()
}

// HabitCompletions returns the user's completions dated within [from, to].
func (s *Store) HabitCompletions(ctx context.Context, userID string, from, to core.Date) ([]core.HabitCompletion, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT habit_id, date FROM habit_completions
		WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date`, userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list habit completions: %w", err)
	}
	defer rows.Close()

	var out []core.HabitCompletion
	for rows.Next() {
		var (
			c core.HabitCompletion
			d string
		)
		if err := rows.Scan(&c.HabitID, &d); err != nil {
			return nil, err
		}
		if c.Date, err = core.ParseDate(d); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ToggleHabitCompletion adds the completion for date when missing and removes
// it otherwise. It reports whether the habit is completed afterwards.
func (s *Store) ToggleHabitCompletion(ctx context.Context, userID, habitID string, date core.Date) (bool, error) {
	var done bool
	err := s.Tx(ctx, func(tx *Store) error {
		var owner string
		if err := tx.q.QueryRowContext(ctx, `SELECT user_id FROM habits WHERE id = ?`, habitID).Scan(&owner); err != nil {
			return translate(err)
		}
		if owner != userID {
			return ErrNotFound
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM habit_completions WHERE habit_id = ? AND date = ?`, habitID, date.String())
		if err != nil {
			return fmt.Errorf("delete completion: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			done = false
			return nil
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO habit_completions (habit_id, user_id, date, created_at) VALUES (?, ?, ?, ?)`,
			habitID, userID, date.String(), formatTime(tx.now())); err != nil {
			return fmt.Errorf("insert completion: %w", translate(err))
		}
		done = true
		return nil
	})
	return done, err
}
