package performance

import (
	"time"

	"github.com/google/uuid"
)

type QuizAttempt struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	DocumentID  *uuid.UUID `json:"document_id,omitempty"`
	Topic       string     `json:"topic"`
	Correct     int        `json:"correct"`
	Total       int        `json:"total"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Percent is the attempt score in the range 0-100.
func (a *QuizAttempt) Percent() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Correct) * 100 / float64(a.Total)
}

// TopicPerformance aggregates a user's attempts on one topic.
type TopicPerformance struct {
	Topic         string    `json:"topic"`
	Attempts      int       `json:"attempts"`
	AveragePct    float64   `json:"average_pct"`
	BestPct       float64   `json:"best_pct"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

type RecordAttemptRequest struct {
	DocumentID *uuid.UUID `json:"document_id"`
	Topic      string     `json:"topic" validate:"required,min=1,max=200"`
	Correct    int        `json:"correct" validate:"min=0,ltefield=Total"`
	Total      int        `json:"total" validate:"required,min=1,max=1000"`
}
