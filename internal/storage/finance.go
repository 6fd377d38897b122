package storage

import (
	"context"
	"fmt"

	"ordem/internal/core"
)

const transactionSelect = `SELECT id, user_id, date, description, amount_cents, category, created_at, updated_at FROM transactions`

func scanTransaction(scanner interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t                      core.Transaction
		date, cat, created, up string
	)
	if err := scanner.Scan(&t.ID, &t.UserID, &date, &t.Description, &t.Amount.Cents, &cat, &created, &up); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date = d
	t.Category = core.Category(cat)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(up)
	return t, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactions returns every transaction of the user.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.queryTransactions(ctx, transactionSelect+` WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
}

// ListTransactionsInMonth returns the user's transactions dated within month.
func (s *Store) ListTransactionsInMonth(ctx context.Context, userID string, month core.MonthKey) ([]core.Transaction, error) {
	return s.queryTransactions(ctx, transactionSelect+` WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date DESC, created_at DESC`,
		userID, month.First().String(), month.Last().String())
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx, transactionSelect+` WHERE user_id = ? AND id = ?`, userID, id))
	if err != nil {
		return core.Transaction{}, translate(err)
	}
	return t, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := s.now()
	t.ID = newID()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, date, description, amount_cents, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Date.String(), t.Description, t.Amount.Cents, string(t.Category), formatTime(now), formatTime(now))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", translate(err))
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.UpdatedAt = s.now()
	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions SET date = ?, description = ?, amount_cents = ?, category = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		t.Date.String(), t.Description, t.Amount.Cents, string(t.Category), formatTime(t.UpdatedAt), t.UserID, t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireAffected(res)
}

// UpsertAggregate replaces the stored totals of the aggregate's month.
func (s *Store) UpsertAggregate(ctx context.Context, a core.MonthlyAggregate) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO monthly_aggregates (user_id, year, month, income_cents, fixed_cents, variable_cents, debt_cents, investment_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			income_cents = excluded.income_cents,
			fixed_cents = excluded.fixed_cents,
			variable_cents = excluded.variable_cents,
			debt_cents = excluded.debt_cents,
			investment_cents = excluded.investment_cents,
			updated_at = excluded.updated_at`,
		a.UserID, a.Month.Year, a.Month.Month, a.Income.Cents, a.Fixed.Cents, a.Variable.Cents, a.Debt.Cents, a.Investment.Cents,
		formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert monthly aggregate: %w", err)
	}
	return nil
}

// GetAggregate returns the stored totals of a month, or zero totals when the
// month has no row yet.
func (s *Store) GetAggregate(ctx context.Context, userID string, month core.MonthKey) (core.MonthlyAggregate, error) {
	a := core.MonthlyAggregate{UserID: userID, Month: month}
	var updated string
	err := s.q.QueryRowContext(ctx, `
		SELECT income_cents, fixed_cents, variable_cents, debt_cents, investment_cents, updated_at
		FROM monthly_aggregates WHERE user_id = ? AND year = ? AND month = ?`, userID, month.Year, month.Month).
		Scan(&a.Income.Cents, &a.Fixed.Cents, &a.Variable.Cents, &a.Debt.Cents, &a.Investment.Cents, &updated)
	if err != nil {
		if translate(err) == ErrNotFound {
			return a, nil
		}
		return a, fmt.Errorf("get monthly aggregate: %w", err)
	}
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

// ListAggregates returns the stored months of a year, ascending.
func (s *Store) ListAggregates(ctx context.Context, userID string, year int) ([]core.MonthlyAggregate, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT month, income_cents, fixed_cents, variable_cents, debt_cents, investment_cents, updated_at
		FROM monthly_aggregates WHERE user_id = ? AND year = ? ORDER BY month`, userID, year)
	if err != nil {
		return nil, fmt.Errorf("list monthly aggregates: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyAggregate
	for rows.Next() {
		a := core.MonthlyAggregate{UserID: userID, Month: core.MonthKey{Year: year}}
		var updated string
		if err := rows.Scan(&a.Month.Month, &a.Income.Cents, &a.Fixed.Cents, &a.Variable.Cents, &a.Debt.Cents, &a.Investment.Cents, &updated); err != nil {
			return nil, err
		}
		a.UpdatedAt = parseTime(updated)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAggregateMonths returns every month holding an aggregate row, ascending.
func (s *Store) ListAggregateMonths(ctx context.Context, userID string) ([]core.MonthKey, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT year, month FROM monthly_aggregates WHERE user_id = ? ORDER BY year, month`, userID)
	if err != nil {
		return nil, fmt.Errorf("list aggregate months: %w", err)
	}
	defer rows.Close()

	var out []core.MonthKey
	for rows.Next() {
		var k core.MonthKey
		if err := rows.Scan(&k.Year, &k.Month); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ListBudgets returns the budgets the user set for month.
func (s *Store) ListBudgets(ctx context.Context, userID string, month core.MonthKey) ([]core.Budget, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, category, limit_cents FROM budgets
		WHERE user_id = ? AND year = ? AND month = ? ORDER BY category`, userID, month.Year, month.Month)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b := core.Budget{Month: month}
		var cat string
		if err := rows.Scan(&b.ID, &cat, &b.Limit.Cents); err != nil {
			return nil, err
		}
		b.Category = core.Category(cat)
		out = append(out, b)
	}
	return out, rows.Err()
}
