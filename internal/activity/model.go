package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	MessageAnswered  = "message_answered"
	MessageDeflected = "message_deflected"
	MessageFallback  = "message_fallback"
	DocumentUploaded = "document_uploaded"
	DocumentDeleted  = "document_deleted"
	QuizRecorded     = "quiz_recorded"
	MemoryCleared    = "memory_cleared"
)

// Log matches the activity_logs table schema.
type Log struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ListParams struct {
	EventType string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
