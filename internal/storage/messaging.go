package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ordem/internal/core"
)

// CreateConversation stores a conversation and its participants.
func (s *Store) CreateConversation(ctx context.Context, c core.Conversation, directKey string, participantIDs []string) (core.Conversation, error) {
	now := s.now()
	c.ID = newID()
	c.CreatedAt, c.UpdatedAt = now, now
	var key any
	if directKey != "" {
		key = directKey
	}

	err := s.Tx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO conversations (id, kind, title, direct_key, created_by, last_seq, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			c.ID, string(c.Kind), c.Title, key, c.CreatedBy, formatTime(now), formatTime(now)); err != nil {
			return fmt.Errorf("insert conversation: %w", translate(err))
		}
		for _, uid := range participantIDs {
			if _, err := tx.q.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, last_read_seq, joined_at)
				VALUES (?, ?, 0, ?) ON CONFLICT DO NOTHING`, c.ID, uid, formatTime(now)); err != nil {
				return fmt.Errorf("insert participant: %w", translate(err))
			}
		}
		return nil
	})
	if err != nil {
		return core.Conversation{}, err
	}
	return c, nil
}

const conversationSelect = `SELECT id, kind, title, created_by, last_seq, created_at, updated_at FROM conversations`

func scanConversation(scanner interface{ Scan(...any) error }) (core.Conversation, error) {
	var (
		c                      core.Conversation
		kind, created, updated string
	)
	if err := scanner.Scan(&c.ID, &kind, &c.Title, &c.CreatedBy, &c.LastSeq, &created, &updated); err != nil {
		return core.Conversation{}, err
	}
	c.Kind = core.ConversationKind(kind)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (core.Conversation, error) {
	c, err := scanConversation(s.q.QueryRowContext(ctx, conversationSelect+` WHERE id = ?`, id))
	return c, translate(err)
}

func (s *Store) FindDirectConversation(ctx context.Context, directKey string) (core.Conversation, error) {
	c, err := scanConversation(s.q.QueryRowContext(ctx, conversationSelect+` WHERE direct_key = ?`, directKey))
	return c, translate(err)
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID string) ([]core.Participant, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT cp.conversation_id, cp.user_id, p.display_name, cp.last_read_seq, cp.joined_at
		FROM conversation_participants cp JOIN profiles p ON p.user_id = cp.user_id
		WHERE cp.conversation_id = ? ORDER BY cp.joined_at, p.display_name`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		var (
			p      core.Participant
			joined string
		)
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.DisplayName, &p.LastReadSeq, &joined); err != nil {
			return nil, err
		}
		p.JoinedAt = parseTime(joined)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListConversationSummaries returns the user's conversations, most recently
// active first, with unread counts and the last message.
func (s *Store) ListConversationSummaries(ctx context.Context, userID string) ([]core.ConversationSummary, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.kind, c.title, c.created_by, c.last_seq, c.created_at, c.updated_at, cp.last_read_seq,
			m.id, m.sender_id, m.seq, m.body, m.created_at
		FROM conversation_participants cp
		JOIN conversations c ON c.id = cp.conversation_id
		LEFT JOIN messages m ON m.conversation_id = c.id AND m.seq = c.last_seq
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var out []core.ConversationSummary
	for rows.Next() {
		var (
			sum                    core.ConversationSummary
			kind, created, updated string
			lastRead               int64
			mID, mSender, mBody    sql.NullString
			mCreated               sql.NullString
			mSeq                   sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &kind, &sum.Title, &sum.CreatedBy, &sum.LastSeq, &created, &updated, &lastRead,
			&mID, &mSender, &mSeq, &mBody, &mCreated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sum.Kind = core.ConversationKind(kind)
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		sum.Unread = sum.LastSeq - lastRead
		if sum.Unread < 0 {
			sum.Unread = 0
		}
		if mID.Valid {
			sum.LastMessage = &core.Message{ID: mID.String, ConversationID: sum.ID, SenderID: mSender.String,
				Seq: mSeq.Int64, Body: mBody.String, CreatedAt: parseTime(mCreated.String)}
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		peers, err := s.ListParticipants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		for _, p := range peers {
			if p.UserID != userID {
				out[i].Peers = append(out[i].Peers, p)
			}
		}
	}
	return out, nil
}

// LastSeq returns the highest sequence number stored for a conversation.
func (s *Store) LastSeq(ctx context.Context, conversationID string) (int64, error) {
	var seq int64
	err := s.q.QueryRowContext(ctx, `SELECT last_seq FROM conversations WHERE id = ?`, conversationID).Scan(&seq)
	if err != nil {
		return 0, translate(err)
	}
	return seq, nil
}

// InsertMessage stores m and advances the conversation's last_seq. The caller
// assigns m.Seq.
func (s *Store) InsertMessage(ctx context.Context, m core.Message) (core.Message, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	var nonce any
	if m.ClientNonce != "" {
		nonce = m.ClientNonce
	}
	err := s.Tx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, seq, body, client_nonce, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.SenderID, m.Seq, m.Body, nonce, formatTime(m.CreatedAt)); err != nil {
			return fmt.Errorf("insert message: %w", translate(err))
		}
		res, err := tx.q.ExecContext(ctx,
			`UPDATE conversations SET last_seq = ?, updated_at = ? WHERE id = ? AND last_seq < ?`,
			m.Seq, formatTime(m.CreatedAt), m.ConversationID, m.Seq)
		if err != nil {
			return fmt.Errorf("advance last_seq: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return fmt.Errorf("%w: sequence %d is not ahead of the conversation", ErrConflict, m.Seq)
		}
		// The sender has read everything up to its own message.
		_, err = tx.q.ExecContext(ctx, `
			UPDATE conversation_participants SET last_read_seq = ?
			WHERE conversation_id = ? AND user_id = ? AND last_read_seq < ?`,
			m.Seq, m.ConversationID, m.SenderID, m.Seq)
		return err
	})
	if err != nil {
		return core.Message{}, err
	}
	return m, nil
}

const messageSelect = `SELECT id, conversation_id, sender_id, seq, body, COALESCE(client_nonce, ''), created_at FROM messages`

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]core.Message, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			m       core.Message
			created string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Seq, &m.Body, &m.ClientNonce, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindMessageByNonce returns the message a sender stored with nonce.
func (s *Store) FindMessageByNonce(ctx context.Context, conversationID, senderID, nonce string) (core.Message, error) {
	msgs, err := s.queryMessages(ctx, messageSelect+` WHERE conversation_id = ? AND sender_id = ? AND client_nonce = ?`,
		conversationID, senderID, nonce)
	if err != nil {
		return core.Message{}, err
	}
	if len(msgs) == 0 {
		return core.Message{}, ErrNotFound
	}
	return msgs[0], nil
}

// ListMessagesAfter returns up to limit messages with seq > after, ascending.
func (s *Store) ListMessagesAfter(ctx context.Context, conversationID string, after int64, limit int) ([]core.Message, error) {
	return s.queryMessages(ctx, messageSelect+` WHERE conversation_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		conversationID, after, limit)
}

// ListRecentMessages returns the last limit messages, ascending.
func (s *Store) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	return s.queryMessages(ctx, `SELECT * FROM (`+messageSelect+` WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?) ORDER BY seq`,
		conversationID, limit)
}

// MarkRead advances the participant's read marker to seq, capped at the
// conversation's last_seq. The marker never moves backwards.
func (s *Store) MarkRead(ctx context.Context, conversationID, userID string, seq int64) (int64, error) {
	var marker int64
	err := s.q.QueryRowContext(ctx, `
		UPDATE conversation_participants
		SET last_read_seq = MAX(last_read_seq, MIN(?, (SELECT last_seq FROM conversations WHERE id = ?)))
		WHERE conversation_id = ? AND user_id = ?
		RETURNING last_read_seq`, seq, conversationID, conversationID, userID).Scan(&marker)
	if err != nil {
		return 0, translate(err)
	}
	return marker, nil
}

// UnreadTotal sums the user's unread counts over every conversation.
func (s *Store) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(MAX(c.last_seq - cp.last_read_seq, 0)), 0)
		FROM conversation_participants cp JOIN conversations c ON c.id = cp.conversation_id
		WHERE cp.user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return n, nil
}
