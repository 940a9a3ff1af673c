package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/activity"
	"github.com/studybuddy-platform/studybuddy/internal/config"
	"github.com/studybuddy-platform/studybuddy/internal/embedding"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

type memRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*Document
}

func newMemRepo() *memRepo { return &memRepo{docs: map[uuid.UUID]*Document{}} }

func (m *memRepo) Create(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListByOwner(_ context.Context, userID uuid.UUID, _, _ int) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) CountByOwner(ctx context.Context, userID uuid.UUID) (int64, error) {
	docs, _ := m.ListByOwner(ctx, userID, 0, 0)
	return int64(len(docs)), nil
}

func (m *memRepo) ListRecentIDs(context.Context, uuid.UUID, int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *memRepo) UpdateIngestion(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{float32(len(text)%7) + 1, 1, 0}, nil
}

// blockingEmbedder never answers before its context ends.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubGenerator struct {
	name  string
	reply string
	err   error
	calls int
}

func (g *stubGenerator) Name() string { return g.name }

func (g *stubGenerator) Generate(ctx context.Context, _ string, _ llm.Options) (string, error) {
	g.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.reply, g.err
}

func (g *stubGenerator) GenerateStream(ctx context.Context, p string, o llm.Options, _ func(string)) (string, error) {
	return g.Generate(ctx, p, o)
}

type captureRecorder struct{ events []inats.ActivityEvent }

func (c *captureRecorder) Record(_ context.Context, e inats.ActivityEvent) {
	c.events = append(c.events, e)
}

var _ activity.Recorder = (*captureRecorder)(nil)

const sampleText = "Mitosis is the process by which a cell divides into two identical daughter cells. " +
	"It has four phases: prophase, metaphase, anaphase and telophase."

func newTestService(t *testing.T, emb embedding.Embedder, gen llm.Generator) (*Service, *memRepo, *vectorstore.ChromemStore, *captureRecorder) {
	t.Helper()
	vectors, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)
	repo := newMemRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, emb, vectors, gen, rec, config.DocumentsConfig{ChunkSize: 8, ChunkOverlap: 2})
	svc.extract = func([]byte) (*Extracted, error) {
		return &Extracted{Text: sampleText, PageCount: 2}, nil
	}
	return svc, repo, vectors, rec
}

func TestService_Ingest(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{name: llm.ProviderOpenAI, reply: "SUMMARY:\nCells divide.\nKEY POINTS:\n- Four phases\n- Two daughter cells"}
	svc, repo, vectors, rec := newTestService(t, stubEmbedder{}, gen)
	user := uuid.New()

	doc, err := svc.Ingest(ctx, user, "Cell Division.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, StatusReady, doc.Status)
	assert.Equal(t, "Cell Division", doc.Title)
	assert.Equal(t, 2, doc.PageCount)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Equal(t, "Cells divide.", doc.Summary)
	assert.Equal(t, []string{"Four phases", "Two daughter cells"}, doc.KeyPoints)

	stored, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, stored.Status)

	matches, err := vectors.Query(ctx, vectorstore.DocumentNamespace(user, doc.ID), []float32{1, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, matches, doc.ChunkCount)

	require.Len(t, rec.events, 1)
	assert.Equal(t, activity.DocumentUploaded, rec.events[0].EventType)
}

func TestService_IngestDegrades(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding unavailable leaves document unindexed", func(t *testing.T) {
		gen := &stubGenerator{name: llm.ProviderGemini, err: errors.New("quota")}
		svc, _, _, _ := newTestService(t, embedding.Disabled{}, gen)

		doc, err := svc.Ingest(ctx, uuid.New(), "notes.pdf", []byte("%PDF"))
		require.NoError(t, err)
		assert.Equal(t, StatusUnindexed, doc.Status)
		assert.Zero(t, doc.ChunkCount)
		assert.Empty(t, doc.Summary, "summary failure is swallowed")
		assert.Equal(t, 1, gen.calls)
	})

	t.Run("placeholder backend skips summary", func(t *testing.T) {
		gen := &stubGenerator{name: llm.ProviderPlaceholder}
		svc, _, _, _ := newTestService(t, stubEmbedder{}, gen)

		_, err := svc.Ingest(ctx, uuid.New(), "notes.pdf", []byte("%PDF"))
		require.NoError(t, err)
		assert.Zero(t, gen.calls)
	})

	t.Run("slow indexing leaves the summary its own budget", func(t *testing.T) {
		gen := &stubGenerator{name: llm.ProviderOpenAI, reply: "SUMMARY:\nCells divide."}
		svc, _, _, _ := newTestService(t, blockingEmbedder{}, gen)
		svc.cfg.ProcessTimeout = 50 * time.Millisecond

		doc, err := svc.Ingest(ctx, uuid.New(), "notes.pdf", []byte("%PDF"))
		require.NoError(t, err)
		assert.Equal(t, StatusUnindexed, doc.Status)
		assert.Equal(t, "Cells divide.", doc.Summary)
	})

	t.Run("unreadable pdf fails before storing", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t, stubEmbedder{}, &stubGenerator{name: llm.ProviderPlaceholder})
		svc.extract = func([]byte) (*Extracted, error) { return nil, ErrUnreadablePDF }

		_, err := svc.Ingest(ctx, uuid.New(), "broken.pdf", []byte("nope"))
		assert.True(t, errors.Is(err, ErrUnreadablePDF))
		assert.Empty(t, repo.docs)
	})
}

func TestService_OwnershipAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, vectors, _ := newTestService(t, stubEmbedder{}, &stubGenerator{name: llm.ProviderPlaceholder})
	owner := uuid.New()

	doc, err := svc.Ingest(ctx, owner, "a.pdf", []byte("%PDF"))
	require.NoError(t, err)

	_, err = svc.GetOwned(ctx, uuid.New(), doc.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	title, found, err := svc.FindOwned(ctx, owner, doc.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", title)

	_, found, err = svc.FindOwned(ctx, uuid.New(), doc.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, svc.Delete(ctx, doc))
	matches, err := vectors.Query(ctx, vectorstore.DocumentNamespace(owner, doc.ID), []float32{1, 1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches, "namespace is dropped with the document")

	_, err = svc.GetOwned(ctx, owner, doc.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
