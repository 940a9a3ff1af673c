package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the message store. Lookups return nil, nil when the row does not exist.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Session, error)
	CountSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	AppendMessage(ctx context.Context, m *Message) error
	RecentMessages(ctx context.Context, userID uuid.UUID, topic string, limit int) ([]*Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error)
	ResetMemory(ctx context.Context, userID uuid.UUID, topic string, at time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const sessionColumns = `id, user_id, type, document_id, title, message_count, last_activity_at, created_at`

func scanSession(row pgx.Row) (*Session, error) {
	s := &Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.Type, &s.DocumentID, &s.Title,
		&s.MessageCount, &s.LastActivityAt, &s.CreatedAt)
	return s, err
}

func (r *postgresRepository) CreateSession(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO chat_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.Type, s.DocumentID, s.Title,
		s.MessageCount, s.LastActivityAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat session: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying chat session by id: %w", err)
	}
	return s, nil
}

func (r *postgresRepository) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY last_activity_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *postgresRepository) CountSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chat sessions: %w", err)
	}
	return count, nil
}

// DeleteSession removes the session; its messages go with it (ON DELETE CASCADE).
func (r *postgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage inserts the message and bumps the session counters in one transaction.
func (r *postgresRepository) AppendMessage(ctx context.Context, m *Message) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encoding message metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning message transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, user_id, topic, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.SessionID, m.UserID, m.Topic, m.Role, m.Content, metadata, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE chat_sessions
		SET message_count = message_count + 1, last_activity_at = $2
		WHERE id = $1`, m.SessionID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("updating chat session activity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chat message: %w", err)
	}
	return nil
}

const messageColumns = `m.id, m.session_id, m.user_id, m.topic, m.role, m.content, m.metadata, m.created_at`

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Topic, &m.Role,
			&m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// RecentMessages returns the latest messages for a (user, topic) pair across
// all of the user's sessions, oldest first. Messages older than the last
// memory reset for the topic are excluded.
func (r *postgresRepository) RecentMessages(ctx context.Context, userID uuid.UUID, topic string, limit int) ([]*Message, error) {
	query := `
		SELECT id, session_id, user_id, topic, role, content, metadata, created_at
		FROM (
			SELECT ` + messageColumns + `, m.seq
			FROM chat_messages m
			LEFT JOIN memory_resets r ON r.user_id = m.user_id AND r.topic = m.topic
			WHERE m.user_id = $1 AND m.topic = $2
			  AND (r.reset_at IS NULL OR m.created_at > r.reset_at)
			ORDER BY m.seq DESC
			LIMIT $3
		) recent
		ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, userID, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *postgresRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages m
		WHERE m.session_id = $1
		ORDER BY m.seq ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *postgresRepository) ResetMemory(ctx context.Context, userID uuid.UUID, topic string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO memory_resets (user_id, topic, reset_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, topic) DO UPDATE SET reset_at = EXCLUDED.reset_at`,
		userID, topic, at)
	if err != nil {
		return fmt.Errorf("recording memory reset: %w", err)
	}
	return nil
}
