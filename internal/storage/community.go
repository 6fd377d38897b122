package storage

import (
	"context"
	"fmt"

	"ordem/internal/core"
)

func (s *Store) InsertPost(ctx context.Context, p core.Post) (core.Post, error) {
	now := s.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, content, image_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Content, p.ImagePath, formatTime(now), formatTime(now))
	if err != nil {
		return core.Post{}, fmt.Errorf("insert post: %w", translate(err))
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (core.Post, error) {
	var (
		p                core.Post
		created, updated string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, content, image_path, created_at, updated_at FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.UserID, &p.Content, &p.ImagePath, &created, &updated)
	if err != nil {
		return core.Post{}, translate(err)
	}
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, nil
}

// UpdatePost rewrites a post's content. Only the author may edit.
func (s *Store) UpdatePost(ctx context.Context, userID, id, content string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE posts SET content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		content, formatTime(s.now()), id, userID)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return requireAffected(res)
}

// DeletePost removes the author's post and returns it.
func (s *Store) DeletePost(ctx context.Context, userID, id string) (core.Post, error) {
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return core.Post{}, err
	}
	if p.UserID != userID {
		return core.Post{}, ErrNotFound
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM posts WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return core.Post{}, fmt.Errorf("delete post: %w", err)
	}
	return p, nil
}

// Feed returns the viewer's posts and those of followed users, newest first.
func (s *Store) Feed(ctx context.Context, viewerID string, limit int) ([]core.FeedItem, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.content, p.image_path, p.created_at, p.updated_at,
			pr.display_name, pr.avatar_path,
			(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
			EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = ?)
		FROM posts p JOIN profiles pr ON pr.user_id = p.user_id
		WHERE p.user_id = ? OR p.user_id IN (SELECT followee_id FROM follows WHERE follower_id = ?)
		ORDER BY p.created_at DESC
		LIMIT ?`, viewerID, viewerID, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	defer rows.Close()

	var out []core.FeedItem
	for rows.Next() {
		var (
			it               core.FeedItem
			created, updated string
			liked            int64
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.Content, &it.ImagePath, &created, &updated,
			&it.AuthorName, &it.AuthorAvatar, &it.Likes, &liked); err != nil {
			return nil, err
		}
		it.CreatedAt, it.UpdatedAt = parseTime(created), parseTime(updated)
		it.LikedByMe = liked == 1
		it.Mine = it.UserID == viewerID
		out = append(out, it)
	}
	return out, rows.Err()
}

// ToggleLike flips the viewer's like on a post and reports the new state.
func (s *Store) ToggleLike(ctx context.Context, userID, postID string) (bool, error) {
	var liked bool
	err := s.Tx(ctx, func(tx *Store) error {
		if _, err := tx.GetPost(ctx, postID); err != nil {
			return err
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
		if err != nil {
			return fmt.Errorf("unlike: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
			postID, userID, formatTime(tx.now())); err != nil {
			return fmt.Errorf("like: %w", translate(err))
		}
		liked = true
		return nil
	})
	return liked, err
}

// ToggleFollow flips whether follower follows followee.
func (s *Store) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, core.ErrFollowSelf
	}
	var following bool
	err := s.Tx(ctx, func(tx *Store) error {
		res, err := tx.q.ExecContext(ctx,
			`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`, followerID, followeeID)
		if err != nil {
			return fmt.Errorf("unfollow: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`,
			followerID, followeeID, formatTime(tx.now())); err != nil {
			return fmt.Errorf("follow: %w", translate(err))
		}
		following = true
		return nil
	})
	return following, err
}

func (s *Store) FollowingIDs(ctx context.Context, followerID string) (map[string]bool, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT followee_id FROM follows WHERE follower_id = ?`, followerID)
	if err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListEvents returns upcoming events (starts_at >= from) from every user.
func (s *Store) ListEvents(ctx context.Context, viewerID, from string) ([]core.EventItem, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.id, e.user_id, pr.display_name, e.title, e.description, e.starts_at, e.location,
			(SELECT COUNT(*) FROM event_participants ep WHERE ep.event_id = e.id),
			EXISTS (SELECT 1 FROM event_participants ep WHERE ep.event_id = e.id AND ep.user_id = ?)
		FROM events e JOIN profiles pr ON pr.user_id = e.user_id
		WHERE e.starts_at >= ?
		ORDER BY e.starts_at`, viewerID, from)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.EventItem
	for rows.Next() {
		var (
			ev     core.EventItem
			joined int64
		)
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.OwnerName, &ev.Title, &ev.Description, &ev.StartsAt,
			&ev.Location, &ev.Participants, &joined); err != nil {
			return nil, err
		}
		ev.Joined = joined == 1
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ToggleEventParticipation joins or leaves an event.
func (s *Store) ToggleEventParticipation(ctx context.Context, userID, eventID string) (bool, error) {
	var joined bool
	err := s.Tx(ctx, func(tx *Store) error {
		var n int
		if err := tx.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, eventID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		res, err := tx.q.ExecContext(ctx,
			`DELETE FROM event_participants WHERE event_id = ? AND user_id = ?`, eventID, userID)
		if err != nil {
			return fmt.Errorf("leave event: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO event_participants (event_id, user_id, joined_at) VALUES (?, ?, ?)`,
			eventID, userID, formatTime(tx.now())); err != nil {
			return fmt.Errorf("join event: %w", translate(err))
		}
		joined = true
		return nil
	})
	return joined, err
}
