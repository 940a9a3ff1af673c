package documents

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	// StatusUnindexed documents have text and metadata but no vectors,
	// usually because the embedding service was unavailable at upload.
	StatusUnindexed Status = "unindexed"
)

type Document struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	PageCount  int       `json:"page_count"`
	WordCount  int       `json:"word_count"`
	ChunkCount int       `json:"chunk_count"`
	Status     Status    `json:"status"`
	Summary    string    `json:"summary,omitempty"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ListParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
