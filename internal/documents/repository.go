package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Document, error)
	CountByOwner(ctx context.Context, userID uuid.UUID) (int64, error)
	ListRecentIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
	UpdateIngestion(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const documentColumns = `id, user_id, title, filename, size_bytes, page_count, word_count, chunk_count,
	status, summary, key_points, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.Filename, &d.SizeBytes, &d.PageCount,
		&d.WordCount, &d.ChunkCount, &d.Status, &d.Summary, &d.KeyPoints, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *postgresRepository) Create(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	keyPoints := d.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		d.ID, d.UserID, d.Title, d.Filename, d.SizeBytes, d.PageCount, d.WordCount,
		d.ChunkCount, d.Status, d.Summary, keyPoints, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying document by id: %w", err)
	}
	return d, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *postgresRepository) CountByOwner(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// ListRecentIDs returns the IDs of the user's most recently uploaded documents, newest first.
func (r *postgresRepository) ListRecentIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM documents WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent document ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scanning document ids: %w", err)
	}
	return ids, nil
}

// UpdateIngestion stores the outcome of indexing and summarisation.
func (r *postgresRepository) UpdateIngestion(ctx context.Context, d *Document) error {
	keyPoints := d.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, chunk_count = $3, summary = $4, key_points = $5, updated_at = $6
		WHERE id = $1`,
		d.ID, d.Status, d.ChunkCount, d.Summary, keyPoints, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating document ingestion: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
