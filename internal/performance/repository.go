package performance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the performance store. A nil documentID means every document.
type Repository interface {
	RecordAttempt(ctx context.Context, a *QuizAttempt) error
	RecentAttempts(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID, limit int) ([]*QuizAttempt, error)
	TopicPerformance(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID) ([]*TopicPerformance, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) RecordAttempt(ctx context.Context, a *QuizAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quiz_attempts (id, user_id, document_id, topic, correct, total, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.DocumentID, a.Topic, a.Correct, a.Total, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting quiz attempt: %w", err)
	}
	return nil
}

func (r *postgresRepository) RecentAttempts(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID, limit int) ([]*QuizAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, document_id, topic, correct, total, completed_at
		FROM quiz_attempts
		WHERE user_id = $1 AND ($2::uuid IS NULL OR document_id = $2)
		ORDER BY completed_at DESC
		LIMIT $3`, userID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent quiz attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*QuizAttempt, error) {
		a := &QuizAttempt{}
		err := row.Scan(&a.ID, &a.UserID, &a.DocumentID, &a.Topic, &a.Correct, &a.Total, &a.CompletedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning quiz attempt: %w", err)
	}
	return attempts, nil
}

// TopicPerformance returns per-topic aggregates, weakest topic first.
func (r *postgresRepository) TopicPerformance(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID) ([]*TopicPerformance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT topic,
		       COUNT(*) AS attempts,
		       AVG(correct::float8 * 100 / total) AS average_pct,
		       MAX(correct::float8 * 100 / total) AS best_pct,
		       MAX(completed_at) AS last_attempt_at
		FROM quiz_attempts
		WHERE user_id = $1 AND ($2::uuid IS NULL OR document_id = $2)
		GROUP BY topic
		ORDER BY average_pct ASC, topic ASC`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("aggregating topic performance: %w", err)
	}

	perf, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*TopicPerformance, error) {
		p := &TopicPerformance{}
		err := row.Scan(&p.Topic, &p.Attempts, &p.AveragePct, &p.BestPct, &p.LastAttemptAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning topic performance: %w", err)
	}
	return perf, nil
}
