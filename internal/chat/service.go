package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/memory"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
)

const defaultGeneralTitle = "Study Buddy"

// DocumentFinder resolves a document owned by the user and returns its title.
type DocumentFinder interface {
	FindOwned(ctx context.Context, userID, documentID uuid.UUID) (title string, found bool, err error)
}

type Service struct {
	repo  Repository
	docs  DocumentFinder
	cache *memory.Cache
	now   func() time.Time
}

func NewService(repo Repository, docs DocumentFinder, cache *memory.Cache) *Service {
	return &Service{repo: repo, docs: docs, cache: cache, now: time.Now}
}

func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, req *CreateSessionRequest) (*Session, error) {
	title := req.Title
	var docID *uuid.UUID

	if req.Type == SessionPDF {
		if req.DocumentID == nil {
			return nil, ErrDocumentNotFound
		}
		docTitle, found, err := s.docs.FindOwned(ctx, userID, *req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolving session document: %w", err)
		}
		if !found {
			return nil, ErrDocumentNotFound
		}
		id := *req.DocumentID
		docID = &id
		if title == "" {
			title = docTitle
		}
	}
	if title == "" {
		title = defaultGeneralTitle
	}

	now := s.now()
	session := &Session{
		ID:             uuid.New(),
		UserID:         userID,
		Type:           req.Type,
		DocumentID:     docID,
		Title:          title,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns the session only when it belongs to userID; a foreign
// session is reported exactly like a missing one.
func (s *Service) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		slog.Warn("ownership violation attempt",
			"session_id", sessionID,
			"session_owner", session.UserID,
			"requester", userID,
		)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID, params ListParams) ([]*Session, int64, error) {
	offset := (params.Page - 1) * params.PageSize
	sessions, err := s.repo.ListSessions(ctx, userID, params.PageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountSessions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	return sessions, total, nil
}

// DeleteSession removes the session with its messages and drops the
// conversation window for its topic.
func (s *Service) DeleteSession(ctx context.Context, session *Session) error {
	if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
		return err
	}
	s.clearWindow(ctx, session.WindowKey())
	return nil
}

func (s *Service) ListMessages(ctx context.Context, session *Session, params ListParams) ([]*Message, error) {
	offset := (params.Page - 1) * params.PageSize
	messages, err := s.repo.ListMessages(ctx, session.ID, params.PageSize, offset)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*Message{}
	}
	return messages, nil
}

// ClearMemory forgets the conversation window for the session's topic. The
// reset is persisted so later hydration does not bring the history back.
func (s *Service) ClearMemory(ctx context.Context, session *Session) error {
	key := session.WindowKey()
	if err := s.repo.ResetMemory(ctx, key.UserID, key.Topic, s.now()); err != nil {
		return err
	}
	s.clearWindow(ctx, key)
	return nil
}

func (s *Service) clearWindow(ctx context.Context, key memory.Key) {
	if err := s.cache.Clear(ctx, key); err != nil {
		metrics.WindowErrorsTotal.WithLabelValues("clear").Inc()
		slog.Warn("clearing conversation window", "error", err, "key", key.String())
	}
}

// AppendMessage persists one message for the session.
func (s *Service) AppendMessage(ctx context.Context, session *Session, role, content string, meta MessageMetadata) (*Message, error) {
	msg := &Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		UserID:    session.UserID,
		Topic:     session.Topic(),
		Role:      role,
		Content:   content,
		Metadata:  meta,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
