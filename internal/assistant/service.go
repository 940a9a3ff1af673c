// Package assistant answers chat messages: it deflects long-form requests
// away from the document assistant, assembles context for the session's
// persona, calls the generation backend and persists both sides of the
// exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studybuddy-platform/studybuddy/internal/activity"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

var (
	ErrValidation       = errors.New("message content is required")
	ErrDocumentNotFound = errors.New("document not found")
	ErrGeneration       = errors.New("generation failed")
)

// FallbackReply is persisted in place of a reply the backend failed to produce.
const FallbackReply = "Sorry, I couldn't put an answer together just now. " +
	"Please try again in a moment. Your question has been saved."

// ErrorGenerationFailure flags a fallback reply to clients.
const ErrorGenerationFailure = "generation_failure"

// Outcome labels for metrics.
const (
	outcomeGenerated   = "generated"
	outcomePlaceholder = "placeholder"
	outcomeFallback    = "fallback"
	outcomeDeflected   = "deflected"
)

const defaultHistoryTurns = 6

// MessageStore persists chat messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, session *chat.Session, role, content string, meta chat.MessageMetadata) (*chat.Message, error)
}

// Reply is the outcome of one user message.
type Reply struct {
	UserMessage *chat.Message `json:"user_message"`
	Message     *chat.Message `json:"message"`
	Deflected   bool          `json:"deflected"`
	AIGenerated bool          `json:"ai_generated"`
	Error       string        `json:"error,omitempty"`
}

type Service struct {
	messages     MessageStore
	history      memory.HistorySource
	cache        *memory.Cache
	router       *Router
	gen          llm.Generator
	recorder     activity.Recorder
	historyTurns int
}

func NewService(messages MessageStore, history memory.HistorySource, cache *memory.Cache,
	router *Router, gen llm.Generator, recorder activity.Recorder, historyTurns int) *Service {
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &Service{
		messages:     messages,
		history:      history,
		cache:        cache,
		router:       router,
		gen:          gen,
		recorder:     recorder,
		historyTurns: historyTurns,
	}
}

// HandleMessage answers text within session. When onChunk is non-nil the
// reply is streamed through it as it is generated.
//
// Every persisted user message is followed by exactly one persisted
// assistant message: a deflection, a generated answer or FallbackReply.
// Window and retrieval problems degrade silently; message store errors
// are returned.
func (s *Service) HandleMessage(ctx context.Context, session *chat.Session, text string, onChunk func(string)) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrValidation
	}

	var deflection *Deflection
	if session.Type == chat.SessionPDF {
		deflection = Deflect(text)
	}

	key := session.WindowKey()
	s.refreshWindow(ctx, key)

	if deflection != nil && deflection.SkipGeneration {
		return s.deflect(ctx, session, text, deflection)
	}

	history := s.recentTurns(ctx, key)

	builder, err := s.router.Route(session)
	if err != nil {
		return nil, err
	}
	brief, err := builder.Build(ctx, session, text, history)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.persist(ctx, session, memory.RoleUser, text, chat.MessageMetadata{})
	if err != nil {
		return nil, err
	}

	content, meta, outcome := s.generate(ctx, session, brief, onChunk)

	// The user message is already stored; finish the exchange even if the
	// caller has gone away.
	assistantMsg, err := s.persist(context.WithoutCancel(ctx), session, memory.RoleAssistant, content, meta)
	if err != nil {
		return nil, err
	}

	metrics.MessagesHandledTotal.WithLabelValues(string(session.Type), outcome).Inc()
	eventType := activity.MessageAnswered
	if outcome == outcomeFallback {
		eventType = activity.MessageFallback
	}
	s.recordEvent(ctx, session, eventType, meta.Provider)

	return &Reply{
		UserMessage: userMsg,
		Message:     assistantMsg,
		AIGenerated: meta.AIGenerated,
		Error:       meta.Error,
	}, nil
}

func (s *Service) deflect(ctx context.Context, session *chat.Session, text string, d *Deflection) (*Reply, error) {
	userMsg, err := s.persist(ctx, session, memory.RoleUser, text, chat.MessageMetadata{})
	if err != nil {
		return nil, err
	}
	assistantMsg, err := s.persist(context.WithoutCancel(ctx), session, memory.RoleAssistant, d.Reply,
		chat.MessageMetadata{Deflected: true})
	if err != nil {
		return nil, err
	}

	metrics.MessagesHandledTotal.WithLabelValues(string(session.Type), outcomeDeflected).Inc()
	s.recordEvent(ctx, session, activity.MessageDeflected, "")

	return &Reply{
		UserMessage: userMsg,
		Message:     assistantMsg,
		Deflected:   true,
	}, nil
}

func (s *Service) generate(ctx context.Context, session *chat.Session, brief *Brief, onChunk func(string)) (string, chat.MessageMetadata, string) {
	provider := s.gen.Name()

	var (
		out string
		err error
	)
	if onChunk != nil {
		out, err = s.gen.GenerateStream(ctx, brief.Prompt, brief.Options, onChunk)
	} else {
		out, err = s.gen.Generate(ctx, brief.Prompt, brief.Options)
	}
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		slog.Error("generating reply",
			"error", fmt.Errorf("%w: %w", ErrGeneration, err),
			"provider", provider,
			"session_id", session.ID,
		)
		return FallbackReply, chat.MessageMetadata{
			Provider: provider,
			Error:    ErrorGenerationFailure,
			Sources:  brief.Sources,
		}, outcomeFallback
	}

	meta := chat.MessageMetadata{
		AIGenerated: provider != llm.ProviderPlaceholder,
		Provider:    provider,
		Sources:     brief.Sources,
	}
	if !meta.AIGenerated {
		return out, meta, outcomePlaceholder
	}
	return strings.TrimSpace(out), meta, outcomeGenerated
}

// persist stores the message and mirrors it into the conversation window.
func (s *Service) persist(ctx context.Context, session *chat.Session, role, content string, meta chat.MessageMetadata) (*chat.Message, error) {
	msg, err := s.messages.AppendMessage(ctx, session, role, content, meta)
	if err != nil {
		return nil, fmt.Errorf("persisting %s message: %w", role, err)
	}
	if _, err := s.cache.Append(ctx, session.WindowKey(), role, content); err != nil {
		metrics.WindowErrorsTotal.WithLabelValues("append").Inc()
		slog.Warn("appending to conversation window", "error", err, "session_id", session.ID)
	}
	return msg, nil
}

func (s *Service) refreshWindow(ctx context.Context, key memory.Key) {
	stale, err := s.cache.NeedsRefresh(ctx, key)
	if err != nil {
		metrics.WindowErrorsTotal.WithLabelValues("needs_refresh").Inc()
		slog.Warn("checking conversation window", "error", err, "key", key.String())
	}
	if !stale {
		return
	}
	if _, err := s.cache.Hydrate(ctx, key, s.history); err != nil {
		metrics.WindowErrorsTotal.WithLabelValues("hydrate").Inc()
		slog.Warn("hydrating conversation window", "error", err, "key", key.String())
	}
}

func (s *Service) recentTurns(ctx context.Context, key memory.Key) []memory.Turn {
	turns, err := s.cache.Window(ctx, key, s.historyTurns)
	if err != nil {
		metrics.WindowErrorsTotal.WithLabelValues("window").Inc()
		slog.Warn("reading conversation window", "error", err, "key", key.String())
		return nil
	}
	return turns
}

func (s *Service) recordEvent(ctx context.Context, session *chat.Session, eventType, provider string) {
	details := map[string]string{"session_type": string(session.Type)}
	if provider != "" {
		details["provider"] = provider
	}
	if session.DocumentID != nil {
		details["document_id"] = session.DocumentID.String()
	}
	s.recorder.Record(ctx, activity.NewEvent(session.UserID, eventType, "chat_session", session.ID.String(), details))
}
