package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/chat/chattest"
	"github.com/studybuddy-platform/studybuddy/internal/documents"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
	"github.com/studybuddy-platform/studybuddy/internal/performance"
	"github.com/studybuddy-platform/studybuddy/internal/retrieval"
)

type fakeGenerator struct {
	name  string
	reply string
	err   error

	mu      sync.Mutex
	calls   int
	prompts []string
	opts    []llm.Options
}

func (g *fakeGenerator) Name() string { return g.name }

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts llm.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, prompt string, opts llm.Options, onChunk func(string)) (string, error) {
	out, err := g.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	for _, w := range strings.SplitAfter(out, " ") {
		onChunk(w)
	}
	return out, nil
}

type fakeRetriever struct {
	docResult     retrieval.Result
	generalResult retrieval.Result
	calls         int
}

func (r *fakeRetriever) QueryDocumentContext(context.Context, uuid.UUID, uuid.UUID, string, int) retrieval.Result {
	r.calls++
	return r.docResult
}

func (r *fakeRetriever) QueryGeneralContext(context.Context, uuid.UUID, string, int) retrieval.Result {
	r.calls++
	return r.generalResult
}

type fakeDocuments struct {
	docs map[uuid.UUID]*documents.Document
}

func (f *fakeDocuments) GetOwned(_ context.Context, userID, id uuid.UUID) (*documents.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return nil, documents.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocuments) FindOwned(ctx context.Context, userID, id uuid.UUID) (string, bool, error) {
	d, err := f.GetOwned(ctx, userID, id)
	if err != nil {
		return "", false, nil
	}
	return d.Title, true, nil
}

func (f *fakeDocuments) ListByOwner(_ context.Context, userID uuid.UUID, _ documents.ListParams) ([]*documents.Document, int64, error) {
	var out []*documents.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, int64(len(out)), nil
}

type fakePerformance struct {
	attempts []*performance.QuizAttempt
	topics   []*performance.TopicPerformance
	err      error
}

func (f *fakePerformance) RecentAttempts(_ context.Context, _ uuid.UUID, documentID *uuid.UUID, _ int) ([]*performance.QuizAttempt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*performance.QuizAttempt
	for _, a := range f.attempts {
		if documentID == nil || (a.DocumentID != nil && *a.DocumentID == *documentID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakePerformance) TopicPerformance(context.Context, uuid.UUID, *uuid.UUID) ([]*performance.TopicPerformance, error) {
	return f.topics, f.err
}

type captureRecorder struct {
	events []inats.ActivityEvent
}

func (c *captureRecorder) Record(_ context.Context, e inats.ActivityEvent) {
	c.events = append(c.events, e)
}

type fixture struct {
	repo      *chattest.Repository
	chat      *chat.Service
	cache     *memory.Cache
	gen       *fakeGenerator
	retriever *fakeRetriever
	docs      *fakeDocuments
	perf      *fakePerformance
	recorder  *captureRecorder
	svc       *Service

	user uuid.UUID
	doc  *documents.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	user := uuid.New()
	doc := &documents.Document{
		ID:        uuid.New(),
		UserID:    user,
		Title:     "Plant Biology",
		PageCount: 12,
		Status:    documents.StatusReady,
		Summary:   "Plants convert light into chemical energy.",
		KeyPoints: []string{"Chlorophyll absorbs light", "Glucose is produced"},
	}

	f := &fixture{
		repo:      chattest.NewRepository(),
		cache:     memory.NewCache(memory.NewLocalStore(), memory.DefaultConfig()),
		gen:       &fakeGenerator{name: llm.ProviderOpenAI, reply: "Photosynthesis turns light into sugar."},
		retriever: &fakeRetriever{},
		docs:      &fakeDocuments{docs: map[uuid.UUID]*documents.Document{doc.ID: doc}},
		perf:      &fakePerformance{},
		recorder:  &captureRecorder{},
		user:      user,
		doc:       doc,
	}
	f.chat = chat.NewService(f.repo, f.docs, f.cache)
	router := NewRouter(f.retriever, f.docs, f.perf, 5)
	f.svc = NewService(f.chat, chat.NewHistory(f.repo), f.cache, router, f.gen, f.recorder, 6)
	return f
}

func (f *fixture) session(t *testing.T, typ chat.SessionType) *chat.Session {
	t.Helper()
	req := &chat.CreateSessionRequest{Type: typ}
	if typ == chat.SessionPDF {
		req.DocumentID = &f.doc.ID
	}
	s, err := f.chat.CreateSession(context.Background(), f.user, req)
	require.NoError(t, err)
	return s
}

func TestService_DeflectionSkipsGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.session(t, chat.SessionPDF)

	reply, err := f.svc.HandleMessage(ctx, session, "Can you elaborate on this in detail?", nil)
	require.NoError(t, err)

	assert.True(t, reply.Deflected)
	assert.False(t, reply.AIGenerated)
	assert.Equal(t, DeflectionReply, reply.Message.Content)
	assert.Equal(t, 0, f.gen.calls, "generation must not be called")
	assert.Equal(t, 0, f.retriever.calls, "retrieval must not be consulted")

	msgs := f.repo.Messages(session.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, memory.RoleUser, msgs[0].Role)
	assert.Equal(t, memory.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].Metadata.Deflected)

	turns, err := f.cache.Window(ctx, session.WindowKey(), 10)
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, "message_deflected", f.recorder.events[0].EventType)
}

func TestService_GeneralSessionsAreNotDeflected(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionGeneral)

	reply, err := f.svc.HandleMessage(context.Background(), session, "Explain the Krebs cycle step by step", nil)
	require.NoError(t, err)
	assert.False(t, reply.Deflected)
	assert.Equal(t, 1, f.gen.calls)
}

func TestService_FallbackOnGenerationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.err = errors.New("upstream 503")
	session := f.session(t, chat.SessionPDF)

	reply, err := f.svc.HandleMessage(ctx, session, "What is chlorophyll?", nil)
	require.NoError(t, err)

	assert.False(t, reply.AIGenerated)
	assert.Equal(t, ErrorGenerationFailure, reply.Error)
	assert.Equal(t, FallbackReply, reply.Message.Content)

	var assistant []*chat.Message
	for _, m := range f.repo.Messages(session.ID) {
		if m.Role == memory.RoleAssistant {
			assistant = append(assistant, m)
		}
	}
	require.Len(t, assistant, 1)
	assert.Equal(t, FallbackReply, assistant[0].Content)
	assert.Equal(t, ErrorGenerationFailure, assistant[0].Metadata.Error)
	assert.False(t, assistant[0].Metadata.AIGenerated)

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, "message_fallback", f.recorder.events[0].EventType)
}

func TestService_EmptyReplyFallsBack(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = "   "
	session := f.session(t, chat.SessionGeneral)

	reply, err := f.svc.HandleMessage(context.Background(), session, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply.Message.Content)
}

func TestService_DocumentFlow(t *testing.T) {
	t.Run("uses retrieved excerpts", func(t *testing.T) {
		f := newFixture(t)
		f.retriever.docResult = retrieval.Result{Matches: []retrieval.Match{
			{Score: 0.91, Namespace: "ns", Excerpt: "Light reactions happen in the thylakoid.", Origin: retrieval.OriginPDF, DocumentID: &f.doc.ID},
		}}
		session := f.session(t, chat.SessionPDF)

		reply, err := f.svc.HandleMessage(context.Background(), session, "Where do light reactions happen?", nil)
		require.NoError(t, err)
		assert.True(t, reply.AIGenerated)

		require.Len(t, f.gen.prompts, 1)
		assert.Contains(t, f.gen.prompts[0], "thylakoid")
		assert.NotContains(t, f.gen.prompts[0], "Document summary")
		assert.Equal(t, 400, f.gen.opts[0].MaxTokens)
		assert.Contains(t, f.gen.opts[0].SystemPrompt, "Plant Biology")
		require.Len(t, reply.Message.Metadata.Sources, 1)
		assert.Equal(t, "pdf", reply.Message.Metadata.Sources[0].Origin)
	})

	t.Run("falls back to summary when retrieval is unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.retriever.docResult = retrieval.Result{Unavailable: true, Reason: "embedding"}
		docID := f.doc.ID
		f.perf.attempts = []*performance.QuizAttempt{
			{Topic: "Light reactions", Correct: 3, Total: 4, DocumentID: &docID, CompletedAt: time.Now()},
			{Topic: "Unrelated", Correct: 1, Total: 4, CompletedAt: time.Now()},
		}
		session := f.session(t, chat.SessionPDF)

		_, err := f.svc.HandleMessage(context.Background(), session, "What does chlorophyll do?", nil)
		require.NoError(t, err)

		prompt := f.gen.prompts[0]
		assert.Contains(t, prompt, "Plants convert light into chemical energy.")
		assert.Contains(t, prompt, "- Chlorophyll absorbs light")
		assert.Contains(t, prompt, "Light reactions: 3/4 (75%)")
		assert.NotContains(t, prompt, "Unrelated")
	})

	t.Run("deleted document", func(t *testing.T) {
		f := newFixture(t)
		session := f.session(t, chat.SessionPDF)
		delete(f.docs.docs, f.doc.ID)

		_, err := f.svc.HandleMessage(context.Background(), session, "hi", nil)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Empty(t, f.repo.Messages(session.ID))
	})
}

func TestService_MentorFlow(t *testing.T) {
	f := newFixture(t)
	f.retriever.generalResult = retrieval.Result{Matches: []retrieval.Match{
		{Score: 0.95, Namespace: "perf", Excerpt: "Quiz on Genetics: scored 2/10 (20%).", Origin: retrieval.OriginPerformance},
		{Score: 0.81, Namespace: "doc", Excerpt: "Mendel crossed pea plants.", Origin: retrieval.OriginPDF, DocumentID: &f.doc.ID},
	}}
	f.perf.topics = []*performance.TopicPerformance{
		{Topic: "Genetics", Attempts: 2, AveragePct: 25, BestPct: 30},
		{Topic: "Cells", Attempts: 1, AveragePct: 90, BestPct: 90},
	}
	session := f.session(t, chat.SessionGeneral)

	reply, err := f.svc.HandleMessage(context.Background(), session, "What should I study next?", nil)
	require.NoError(t, err)

	prompt := f.gen.prompts[0]
	assert.Contains(t, prompt, "Mendel crossed pea plants.")
	assert.Contains(t, prompt, "Genetics: average 25%")
	assert.Contains(t, prompt, "- Plant Biology (12 pages)")
	assert.Contains(t, prompt, "What should I study next?")
	assert.Equal(t, 1200, f.gen.opts[0].MaxTokens)
	assert.Len(t, reply.Message.Metadata.Sources, 2)
}

func TestService_PerformanceStoreErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.perf.err = errors.New("db down")
	session := f.session(t, chat.SessionGeneral)

	_, err := f.svc.HandleMessage(context.Background(), session, "hello", nil)
	require.Error(t, err)
	assert.Empty(t, f.repo.Messages(session.ID))
	assert.Equal(t, 0, f.gen.calls)
}

func TestService_Validation(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionPDF)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.HandleMessage(context.Background(), session, text, nil)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, f.repo.Messages(session.ID))
	assert.Equal(t, 0, f.gen.calls)
}

func TestService_MessageStoreErrorPropagates(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionGeneral)
	f.repo.FailAppend = chattest.ErrInjected

	_, err := f.svc.HandleMessage(context.Background(), session, "hello", nil)
	assert.ErrorIs(t, err, chattest.ErrInjected)
	assert.Equal(t, 0, f.gen.calls)
}

func TestService_PlaceholderRepliesAreNotAIGenerated(t *testing.T) {
	f := newFixture(t)
	f.gen.name = llm.ProviderPlaceholder
	f.gen.reply = llm.PlaceholderReply
	session := f.session(t, chat.SessionGeneral)

	reply, err := f.svc.HandleMessage(context.Background(), session, "hello", nil)
	require.NoError(t, err)
	assert.False(t, reply.AIGenerated)
	assert.Empty(t, reply.Error)
	assert.Equal(t, llm.PlaceholderReply, reply.Message.Content)
	assert.Equal(t, llm.ProviderPlaceholder, reply.Message.Metadata.Provider)
}

func TestService_HydratesWindowFromHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	earlier := f.session(t, chat.SessionGeneral)
	_, err := f.chat.AppendMessage(ctx, earlier, memory.RoleUser, "Tell me about mitosis", chat.MessageMetadata{})
	require.NoError(t, err)
	_, err = f.chat.AppendMessage(ctx, earlier, memory.RoleAssistant, "Mitosis splits one cell into two.", chat.MessageMetadata{})
	require.NoError(t, err)

	// A second general session shares the same window topic.
	session := f.session(t, chat.SessionGeneral)
	_, err = f.svc.HandleMessage(ctx, session, "And meiosis?", nil)
	require.NoError(t, err)

	assert.Contains(t, f.gen.prompts[0], "Student: Tell me about mitosis")
	assert.Contains(t, f.gen.prompts[0], "Assistant: Mitosis splits one cell into two.")

	turns, err := f.cache.Window(ctx, session.WindowKey(), 10)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestService_ClearedMemoryIsNotRehydrated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.session(t, chat.SessionGeneral)

	_, err := f.svc.HandleMessage(ctx, session, "Remember the word banana", nil)
	require.NoError(t, err)
	require.NoError(t, f.chat.ClearMemory(ctx, session))

	_, err = f.svc.HandleMessage(ctx, session, "What word?", nil)
	require.NoError(t, err)
	assert.NotContains(t, f.gen.prompts[1], "banana")
}

func TestService_Streaming(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionGeneral)

	var chunks []string
	reply, err := f.svc.HandleMessage(context.Background(), session, "hello", func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, f.gen.reply, strings.Join(chunks, ""))
	assert.Equal(t, f.gen.reply, reply.Message.Content)
}
