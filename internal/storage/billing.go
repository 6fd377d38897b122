package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ordem/internal/core"
)

// UpsertPlan inserts or updates a plan matched by code and returns its id.
func (s *Store) UpsertPlan(ctx context.Context, p core.Plan) (string, error) {
	now := formatTime(s.now())
	if p.ID == "" {
		p.ID = newID()
	}
	var id string
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO plans (id, code, name, price_cents, interval, credits, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			price_cents = excluded.price_cents,
			interval = excluded.interval,
			credits = excluded.credits,
			active = excluded.active,
			updated_at = excluded.updated_at
		RETURNING id`,
		p.ID, p.Code, p.Name, p.PriceCents, string(p.Interval), p.Credits, boolToInt(p.Active), now, now).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert plan: %w", err)
	}
	return id, nil
}

const planSelect = `SELECT id, code, name, price_cents, interval, credits, active FROM plans`

func scanPlan(scanner interface{ Scan(...any) error }) (core.Plan, error) {
	var (
		p        core.Plan
		interval string
		active   int64
	)
	if err := scanner.Scan(&p.ID, &p.Code, &p.Name, &p.PriceCents, &interval, &p.Credits, &active); err != nil {
		return core.Plan{}, err
	}
	p.Interval = core.PlanInterval(interval)
	p.Active = active != 0
	return p, nil
}

func (s *Store) ListPlans(ctx context.Context, activeOnly bool) ([]core.Plan, error) {
	query := planSelect
	if activeOnly {
		query += ` WHERE active = 1`
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY price_cents, name`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []core.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	p, err := scanPlan(s.q.QueryRowContext(ctx, planSelect+` WHERE id = ?`, id))
	return p, translate(err)
}

func (s *Store) GetPlanByCode(ctx context.Context, code string) (core.Plan, error) {
	p, err := scanPlan(s.q.QueryRowContext(ctx, planSelect+` WHERE code = ?`, code))
	return p, translate(err)
}

func (s *Store) GetSubscription(ctx context.Context, userID string) (core.Subscription, error) {
	var (
		sub              core.Subscription
		planID           sql.NullString
		status, end, upd string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT user_id, plan_id, status, current_period_end, updated_at FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&sub.UserID, &planID, &status, &end, &upd)
	if err != nil {
		return core.Subscription{}, translate(err)
	}
	sub.PlanID = planID.String
	sub.Status = core.SubscriptionStatus(status)
	sub.CurrentPeriodEnd = parseTime(end)
	sub.UpdatedAt = parseTime(upd)
	return sub, nil
}

func (s *Store) UpsertSubscription(ctx context.Context, sub core.Subscription) error {
	var planID any
	if sub.PlanID != "" {
		planID = sub.PlanID
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, status, current_period_end, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		sub.UserID, planID, string(sub.Status), formatTime(sub.CurrentPeriodEnd), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", translate(err))
	}
	return nil
}

// ExpireSubscriptions marks trialing and active subscriptions whose period
// ended before now as expired and returns the affected user ids.
func (s *Store) ExpireSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = ?
		WHERE status IN ('trialing', 'active') AND current_period_end < ?
		RETURNING user_id`, formatTime(s.now()), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("expire subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AddCredit(ctx context.Context, userID string, amount int64, reason string) (core.CreditEntry, error) {
	e := core.CreditEntry{ID: newID(), UserID: userID, Amount: amount, Reason: reason, CreatedAt: s.now()}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO credits (id, user_id, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount, e.Reason, formatTime(e.CreatedAt))
	if err != nil {
		return core.CreditEntry{}, fmt.Errorf("add credit: %w", translate(err))
	}
	return e, nil
}

func (s *Store) CreditBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM credits WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

func (s *Store) ListCredits(ctx context.Context, userID string, limit int) ([]core.CreditEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, created_at FROM credits WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var out []core.CreditEntry
	for rows.Next() {
		var (
			e       core.CreditEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
