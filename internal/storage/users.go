package storage

import (
	"context"
	"fmt"
	"strings"

	"ordem/internal/core"
)

// CreateAccount stores a user, its profile and its initial subscription atomically.
func (s *Store) CreateAccount(ctx context.Context, u core.User, p core.Profile, sub core.Subscription) (core.Account, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	now := s.now()
	u.CreatedAt = now
	p.UserID = u.ID
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Role == "" {
		p.Role = core.RoleUser
	}

	err := s.Tx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.Email, u.PasswordHash, formatTime(now)); err != nil {
			return fmt.Errorf("insert user: %w", translate(err))
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO profiles (user_id, display_name, bio, avatar_path, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.ID, p.DisplayName, p.Bio, p.AvatarPath, string(p.Role), formatTime(now), formatTime(now)); err != nil {
			return fmt.Errorf("insert profile: %w", translate(err))
		}
		sub.UserID = u.ID
		return tx.UpsertSubscription(ctx, sub)
	})
	if err != nil {
		return core.Account{}, err
	}
	return core.Account{User: u, Profile: p}, nil
}

const accountSelect = `SELECT u.id, u.email, u.password_hash, u.created_at,
	p.display_name, p.bio, p.avatar_path, p.role, p.created_at, p.updated_at
	FROM users u JOIN profiles p ON p.user_id = u.id`

func scanAccount(scanner interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a                                  core.Account
		role, uCreated, pCreated, pUpdated string
	)
	if err := scanner.Scan(&a.ID, &a.Email, &a.PasswordHash, &uCreated,
		&a.Profile.DisplayName, &a.Profile.Bio, &a.Profile.AvatarPath, &role, &pCreated, &pUpdated); err != nil {
		return core.Account{}, err
	}
	a.CreatedAt = parseTime(uCreated)
	a.Profile.UserID = a.ID
	a.Profile.Role = core.Role(role)
	a.Profile.CreatedAt = parseTime(pCreated)
	a.Profile.UpdatedAt = parseTime(pUpdated)
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (core.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, accountSelect+` WHERE u.id = ?`, userID))
	if err != nil {
		return core.Account{}, translate(err)
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (core.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, accountSelect+` WHERE u.email = ?`, email))
	if err != nil {
		return core.Account{}, translate(err)
	}
	return a, nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID, displayName, bio string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE profiles SET display_name = ?, bio = ?, updated_at = ? WHERE user_id = ?`,
		displayName, bio, formatTime(s.now()), userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireAffected(res)
}

// SetAvatar stores the avatar path and returns the previous one.
func (s *Store) SetAvatar(ctx context.Context, userID, path string) (string, error) {
	var previous string
	err := s.Tx(ctx, func(tx *Store) error {
		if err := tx.q.QueryRowContext(ctx, `SELECT avatar_path FROM profiles WHERE user_id = ?`, userID).Scan(&previous); err != nil {
			return translate(err)
		}
		_, err := tx.q.ExecContext(ctx, `UPDATE profiles SET avatar_path = ?, updated_at = ? WHERE user_id = ?`,
			path, formatTime(tx.now()), userID)
		return err
	})
	return previous, err
}

func (s *Store) SetRole(ctx context.Context, userID string, role core.Role) error {
	res, err := s.q.ExecContext(ctx, `UPDATE profiles SET role = ?, updated_at = ? WHERE user_id = ?`,
		string(role), formatTime(s.now()), userID)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireAffected(res)
}

// SearchProfiles finds other users by display name or email prefix.
func (s *Store) SearchProfiles(ctx context.Context, query, excludeUserID string, limit int) ([]core.Account, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.q.QueryContext(ctx, accountSelect+`
		WHERE u.id <> ? AND (lower(p.display_name) LIKE ? OR u.email LIKE ?)
		ORDER BY p.display_name LIMIT ?`, excludeUserID, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
