package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/documents"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
	"github.com/studybuddy-platform/studybuddy/internal/performance"
	"github.com/studybuddy-platform/studybuddy/internal/retrieval"
)

const (
	recentAttemptsLimit = 5
	topicLimit          = 5
	ownedDocumentsLimit = 10
)

// Retriever gathers ranked context for a question.
type Retriever interface {
	QueryDocumentContext(ctx context.Context, userID, documentID uuid.UUID, query string, topK int) retrieval.Result
	QueryGeneralContext(ctx context.Context, userID uuid.UUID, query string, topK int) retrieval.Result
}

type DocumentStore interface {
	GetOwned(ctx context.Context, userID, id uuid.UUID) (*documents.Document, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, params documents.ListParams) ([]*documents.Document, int64, error)
}

type PerformanceStore interface {
	RecentAttempts(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID, limit int) ([]*performance.QuizAttempt, error)
	TopicPerformance(ctx context.Context, userID uuid.UUID, documentID *uuid.UUID) ([]*performance.TopicPerformance, error)
}

// Brief is everything a generation call needs.
type Brief struct {
	Prompt  string
	Options llm.Options
	Sources []chat.Source
}

type contextBuilder interface {
	Build(ctx context.Context, session *chat.Session, query string, history []memory.Turn) (*Brief, error)
}

// Router picks the context builder for a session type.
type Router struct {
	document contextBuilder
	mentor   contextBuilder
}

func NewRouter(retriever Retriever, docs DocumentStore, perf PerformanceStore, topK int) *Router {
	if topK <= 0 {
		topK = 5
	}
	return &Router{
		document: &documentBuilder{retriever: retriever, docs: docs, perf: perf, topK: topK},
		mentor:   &mentorBuilder{retriever: retriever, docs: docs, perf: perf, topK: topK},
	}
}

func (r *Router) Route(session *chat.Session) (contextBuilder, error) {
	switch session.Type {
	case chat.SessionPDF:
		if session.DocumentID == nil {
			return nil, fmt.Errorf("pdf session %s has no document", session.ID)
		}
		return r.document, nil
	case chat.SessionGeneral:
		return r.mentor, nil
	default:
		return nil, fmt.Errorf("unknown session type %q", session.Type)
	}
}

func sources(matches []retrieval.Match) []chat.Source {
	if len(matches) == 0 {
		return nil
	}
	out := make([]chat.Source, 0, len(matches))
	for _, m := range matches {
		out = append(out, chat.Source{
			Origin:     string(m.Origin),
			Namespace:  m.Namespace,
			Score:      m.Score,
			DocumentID: m.DocumentID,
		})
	}
	return out
}

// documentBuilder assembles the narrow context of a single document.
type documentBuilder struct {
	retriever Retriever
	docs      DocumentStore
	perf      PerformanceStore
	topK      int
}

func (b *documentBuilder) Build(ctx context.Context, session *chat.Session, query string, history []memory.Turn) (*Brief, error) {
	doc, err := b.docs.GetOwned(ctx, session.UserID, *session.DocumentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("loading session document: %w", err)
	}

	attempts, err := b.perf.RecentAttempts(ctx, session.UserID, &doc.ID, recentAttemptsLimit)
	if err != nil {
		return nil, fmt.Errorf("loading document quiz attempts: %w", err)
	}

	res := b.retriever.QueryDocumentContext(ctx, session.UserID, doc.ID, query, b.topK)

	var p promptBuilder
	if len(res.Matches) > 0 {
		p.matches("Document excerpts", res.Matches)
	} else if !p.summary(doc) {
		p.section("Document")
		p.line("No excerpts or summary are available for %q yet.", doc.Title)
	}
	p.attempts("Quiz results for this document", attempts)
	p.history(history)
	p.question(query)

	return &Brief{
		Prompt: p.String(),
		Options: llm.Options{
			SystemPrompt: fmt.Sprintf(documentSystemPrompt, doc.Title),
			MaxTokens:    documentMaxTokens,
			Temperature:  0.3,
		},
		Sources: sources(res.Matches),
	}, nil
}

// mentorBuilder assembles the broad context across documents and performance.
type mentorBuilder struct {
	retriever Retriever
	docs      DocumentStore
	perf      PerformanceStore
	topK      int
}

func (b *mentorBuilder) Build(ctx context.Context, session *chat.Session, query string, history []memory.Turn) (*Brief, error) {
	userID := session.UserID

	topics, err := b.perf.TopicPerformance(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("loading topic performance: %w", err)
	}
	attempts, err := b.perf.RecentAttempts(ctx, userID, nil, recentAttemptsLimit)
	if err != nil {
		return nil, fmt.Errorf("loading recent quiz attempts: %w", err)
	}
	docs, _, err := b.docs.ListByOwner(ctx, userID, documents.ListParams{Page: 1, PageSize: ownedDocumentsLimit})
	if err != nil {
		return nil, fmt.Errorf("listing owned documents: %w", err)
	}

	res := b.retriever.QueryGeneralContext(ctx, userID, query, b.topK)

	var p promptBuilder
	if len(res.Matches) > 0 {
		p.matches("Relevant material", res.Matches)
	}
	p.topics(topics, topicLimit)
	p.attempts("Recent quiz results", attempts)
	p.documents(docs)
	p.history(history)
	p.question(query)

	return &Brief{
		Prompt: p.String(),
		Options: llm.Options{
			SystemPrompt: mentorSystemPrompt,
			MaxTokens:    mentorMaxTokens,
			Temperature:  0.5,
		},
		Sources: sources(res.Matches),
	}, nil
}
