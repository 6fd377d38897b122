package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ordem/internal/core"
)

// Stats is the admin overview.
type Stats struct {
	Users         int
	Admins        int
	Active        int
	Trialing      int
	Expired       int
	Transactions  int
	Posts         int
	Messages      int
	Conversations int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM profiles WHERE role = 'admin'),
			(SELECT COUNT(*) FROM subscriptions WHERE status = 'active'),
			(SELECT COUNT(*) FROM subscriptions WHERE status = 'trialing'),
			(SELECT COUNT(*) FROM subscriptions WHERE status IN ('expired', 'canceled')),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM conversations)`).
		Scan(&st.Users, &st.Admins, &st.Active, &st.Trialing, &st.Expired,
			&st.Transactions, &st.Posts, &st.Messages, &st.Conversations)
	if err != nil {
		return Stats{}, fmt.Errorf("load stats: %w", err)
	}
	return st, nil
}

// AdminUser is one row of the admin user table.
type AdminUser struct {
	core.Account
	Status  core.SubscriptionStatus
	PlanID  string
	Credits int64
}

func (s *Store) ListUsersForAdmin(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.q.QueryContext(ctx, accountSelect+` ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var out []AdminUser
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, AdminUser{Account: acc})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		var (
			status sql.NullString
			plan   sql.NullString
		)
		err := s.q.QueryRowContext(ctx,
			`SELECT status, plan_id FROM subscriptions WHERE user_id = ?`, out[i].User.ID).Scan(&status, &plan)
		if err != nil && translate(err) != ErrNotFound {
			return nil, fmt.Errorf("load subscription: %w", err)
		}
		out[i].Status = core.SubscriptionStatus(status.String)
		out[i].PlanID = plan.String
		if out[i].Credits, err = s.CreditBalance(ctx, out[i].User.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
