package performance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/activity"
	"github.com/studybuddy-platform/studybuddy/internal/embedding"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

var ErrDocumentNotFound = errors.New("document not found")

const defaultRecentLimit = 10

// DocumentFinder resolves a document owned by the user and returns its title.
type DocumentFinder interface {
	FindOwned(ctx context.Context, userID, documentID uuid.UUID) (title string, found bool, err error)
}

type Service struct {
	repo     Repository
	docs     DocumentFinder
	embedder embedding.Embedder
	vectors  vectorstore.Store
	recorder activity.Recorder
	now      func() time.Time
}

func NewService(repo Repository, docs DocumentFinder, embedder embedding.Embedder,
	vectors vectorstore.Store, recorder activity.Recorder) *Service {
	return &Service{
		repo:     repo,
		docs:     docs,
		embedder: embedder,
		vectors:  vectors,
		recorder: recorder,
		now:      time.Now,
	}
}

// RecordAttempt stores a quiz result and indexes a one-line description of
// it into the user's performance namespace so the mentor can retrieve it.
func (s *Service) RecordAttempt(ctx context.Context, userID uuid.UUID, req *RecordAttemptRequest) (*QuizAttempt, error) {
	var docTitle string
	if req.DocumentID != nil {
		title, found, err := s.docs.FindOwned(ctx, userID, *req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolving quiz document: %w", err)
		}
		if !found {
			return nil, ErrDocumentNotFound
		}
		docTitle = title
	}

	attempt := &QuizAttempt{
		ID:          uuid.New(),
		UserID:      userID,
		DocumentID:  req.DocumentID,
		Topic:       req.Topic,
		Correct:     req.Correct,
		Total:       req.Total,
		CompletedAt: s.now().UTC(),
	}
	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	activity.BestEffort(ctx, "performance_index", func(ctx context.Context) error {
		return s.index(ctx, attempt, docTitle)
	})
	s.recorder.Record(ctx, activity.NewEvent(userID, activity.QuizRecorded, "quiz_attempt", attempt.ID.String(),
		map[string]string{"topic": attempt.Topic, "score": fmt.Sprintf("%d/%d", attempt.Correct, attempt.Total)}))
	return attempt, nil
}

// Describe renders an attempt as the sentence stored in the performance namespace.
func Describe(a *QuizAttempt, docTitle string) string {
	text := fmt.Sprintf("Quiz on %s: scored %d/%d (%.0f%%) on %s.",
		a.Topic, a.Correct, a.Total, a.Percent(), a.CompletedAt.Format("2006-01-02"))
	if docTitle != "" {
		text = fmt.Sprintf("Quiz on %s from %q: scored %d/%d (%.0f%%) on %s.",
			a.Topic, docTitle, a.Correct, a.Total, a.Percent(), a.CompletedAt.Format("2006-01-02"))
	}
	return text
}

func (s *Service) index(ctx context.Context, a *QuizAttempt, docTitle string) error {
	text := Describe(a, docTitle)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	meta := map[string]string{"topic": a.Topic, "attempt_id": a.ID.String()}
	if a.DocumentID != nil {
		meta["document_id"] = a.DocumentID.String()
	}
	return s.vectors.Upsert(ctx, vectorstore.PerformanceNamespace(a.UserID), []vectorstore.Record{{
		ID:       a.ID.String(),
		Text:     text,
		Vector:   vec,
		Metadata: meta,
	}})
}

func (s *Service) RecentAttempts(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID, limit int) ([]*QuizAttempt, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	attempts, err := s.repo.RecentAttempts(ctx, userID, documentID, limit)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []*QuizAttempt{}
	}
	return attempts, nil
}

func (s *Service) TopicPerformance(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID) ([]*TopicPerformance, error) {
	perf, err := s.repo.TopicPerformance(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if perf == nil {
		perf = []*TopicPerformance{}
	}
	return perf, nil
}
