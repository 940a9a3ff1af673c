package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studybuddy-platform/studybuddy/internal/activity"
	"github.com/studybuddy-platform/studybuddy/internal/config"
	"github.com/studybuddy-platform/studybuddy/internal/embedding"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

var ErrNotFound = errors.New("document not found")

const embedConcurrency = 4

type Service struct {
	repo     Repository
	embedder embedding.Embedder
	vectors  vectorstore.Store
	gen      llm.Generator
	recorder activity.Recorder
	chunker  *Chunker
	cfg      config.DocumentsConfig

	extract func([]byte) (*Extracted, error)
	now     func() time.Time
}

func NewService(repo Repository, embedder embedding.Embedder, vectors vectorstore.Store,
	gen llm.Generator, recorder activity.Recorder, cfg config.DocumentsConfig) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		vectors:  vectors,
		gen:      gen,
		recorder: recorder,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:      cfg,
		extract:  ExtractPDF,
		now:      time.Now,
	}
}

// Ingest stores an uploaded PDF: extract text, record the document, index its
// chunks into the document namespace and attach a summary. Indexing and
// summarising degrade without failing the upload.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, filename string, content []byte) (*Document, error) {
	extracted, err := s.extract(content)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := &Document{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     titleFromFilename(filename),
		Filename:  filepath.Base(filename),
		SizeBytes: int64(len(content)),
		PageCount: extracted.PageCount,
		WordCount: len(strings.Fields(extracted.Text)),
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	indexCtx, cancel := s.processContext(ctx)
	chunks, err := s.index(indexCtx, doc, extracted.Text)
	cancel()
	if err != nil {
		slog.Warn("indexing document", "error", err, "document_id", doc.ID)
		doc.Status = StatusUnindexed
		metrics.DocumentsIngestedTotal.WithLabelValues(string(StatusUnindexed)).Inc()
	} else {
		doc.Status = StatusReady
		doc.ChunkCount = chunks
		metrics.DocumentsIngestedTotal.WithLabelValues(string(StatusReady)).Inc()
	}

	summaryCtx, cancel := s.processContext(ctx)
	activity.BestEffort(summaryCtx, "document_summary", func(ctx context.Context) error {
		return s.summarize(ctx, doc, extracted.Text)
	})
	cancel()

	doc.UpdatedAt = s.now()
	if err := s.repo.UpdateIngestion(ctx, doc); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, activity.NewEvent(userID, activity.DocumentUploaded, "document", doc.ID.String(),
		map[string]string{"title": doc.Title, "status": string(doc.Status)}))
	return doc, nil
}

// processContext bounds one ingestion step. Indexing and summarising each
// get the full DOCUMENTS_PROCESS_TIMEOUT.
func (s *Service) processContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProcessTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.ProcessTimeout)
}

func (s *Service) index(ctx context.Context, doc *Document, text string) (int, error) {
	chunks := s.chunker.Chunk(doc.ID, text)
	records := make([]vectorstore.Record, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", c.Index, err)
			}
			records[i] = vectorstore.Record{
				ID:     c.ID,
				Text:   c.Text,
				Vector: vec,
				Metadata: map[string]string{
					"document_id": doc.ID.String(),
					"chunk_index": strconv.Itoa(c.Index),
					"title":       doc.Title,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.vectors.Upsert(ctx, vectorstore.DocumentNamespace(doc.UserID, doc.ID), records); err != nil {
		return 0, fmt.Errorf("upserting chunks: %w", err)
	}
	return len(records), nil
}

const summaryPrompt = `Summarise the study material below for a student.
Reply in exactly this format:
SUMMARY:
<one paragraph of at most 120 words>
KEY POINTS:
- <point>
- <point>
(between 3 and 7 key points)

Material:
%s`

func (s *Service) summarize(ctx context.Context, doc *Document, text string) error {
	if s.gen == nil || s.gen.Name() == llm.ProviderPlaceholder {
		return nil
	}

	words := strings.Fields(text)
	if limit := s.cfg.SummaryMaxWords; limit > 0 && len(words) > limit {
		words = words[:limit]
	}

	out, err := s.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, strings.Join(words, " ")), llm.Options{MaxTokens: 600})
	if err != nil {
		return fmt.Errorf("generating summary: %w", err)
	}
	doc.Summary, doc.KeyPoints = parseSummary(out)
	return nil
}

// parseSummary splits a SUMMARY / KEY POINTS reply. Text without the
// markers is taken as the summary.
func parseSummary(out string) (string, []string) {
	out = strings.TrimSpace(out)
	upper := strings.ToUpper(out)

	kpIdx := strings.Index(upper, "KEY POINTS:")
	summary := out
	var pointsBlock string
	if kpIdx >= 0 {
		summary = out[:kpIdx]
		pointsBlock = out[kpIdx+len("KEY POINTS:"):]
	}
	if i := strings.Index(strings.ToUpper(summary), "SUMMARY:"); i >= 0 {
		summary = summary[i+len("SUMMARY:"):]
	}

	var points []string
	for _, line := range strings.Split(pointsBlock, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			points = append(points, line)
		}
	}
	return strings.TrimSpace(summary), points
}

func titleFromFilename(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." {
		return "Untitled document"
	}
	return title
}

// GetOwned returns the document when it belongs to userID.
func (s *Service) GetOwned(ctx context.Context, userID, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, ErrNotFound
	}
	return doc, nil
}

// FindOwned lets chat sessions bind to a document.
func (s *Service) FindOwned(ctx context.Context, userID, id uuid.UUID) (string, bool, error) {
	doc, err := s.GetOwned(ctx, userID, id)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Title, true, nil
}

func (s *Service) ListByOwner(ctx context.Context, userID uuid.UUID, params ListParams) ([]*Document, int64, error) {
	offset := (params.Page - 1) * params.PageSize
	docs, err := s.repo.ListByOwner(ctx, userID, params.PageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByOwner(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return docs, total, nil
}

// RecentDocumentIDs satisfies retrieval.DocumentLister.
func (s *Service) RecentDocumentIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return s.repo.ListRecentIDs(ctx, userID, limit)
}

// Delete removes the document and drops its vector namespace.
func (s *Service) Delete(ctx context.Context, doc *Document) error {
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	activity.BestEffort(ctx, "document_namespace_delete", func(ctx context.Context) error {
		return s.vectors.DeleteNamespace(ctx, vectorstore.DocumentNamespace(doc.UserID, doc.ID))
	})
	s.recorder.Record(ctx, activity.NewEvent(doc.UserID, activity.DocumentDeleted, "document", doc.ID.String(), nil))
	return nil
}
