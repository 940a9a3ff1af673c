package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/memory"
)

type SessionType string

const (
	SessionPDF     SessionType = "pdf"
	SessionGeneral SessionType = "general"
)

type Session struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Type           SessionType `json:"type"`
	DocumentID     *uuid.UUID  `json:"document_id,omitempty"`
	Title          string      `json:"title"`
	MessageCount   int         `json:"message_count"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Topic is the conversation window topic for the session: the document ID
// for pdf sessions, the general sentinel otherwise.
func (s *Session) Topic() string {
	if s.Type == SessionPDF && s.DocumentID != nil {
		return s.DocumentID.String()
	}
	return memory.GeneralTopic
}

// WindowKey identifies the conversation window shared by every session of
// the same user and topic.
func (s *Session) WindowKey() memory.Key {
	return memory.Key{UserID: s.UserID, Topic: s.Topic()}
}

type Message struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Topic     string          `json:"topic"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// MessageMetadata is stored as JSONB next to each message.
type MessageMetadata struct {
	Deflected   bool     `json:"deflected,omitempty"`
	AIGenerated bool     `json:"ai_generated,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Error       string   `json:"error,omitempty"`
	Sources     []Source `json:"sources,omitempty"`
}

// Source records a retrieval match that informed an assistant reply.
type Source struct {
	Origin     string     `json:"origin"`
	Namespace  string     `json:"namespace"`
	Score      float64    `json:"score"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
}

type CreateSessionRequest struct {
	Type       SessionType `json:"type" validate:"required,oneof=pdf general"`
	DocumentID *uuid.UUID  `json:"document_id" validate:"required_if=Type pdf"`
	Title      string      `json:"title" validate:"max=200"`
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
