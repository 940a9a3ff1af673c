// Package retrieval gathers ranked context snippets for a generation call.
// It never fails: backend problems degrade to fewer or no matches.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studybuddy-platform/studybuddy/internal/embedding"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

// Origin tells where a match came from.
type Origin string

const (
	OriginPDF         Origin = "pdf"
	OriginPerformance Origin = "performance"
)

// Match is one retrieved snippet.
type Match struct {
	Score      float64    `json:"score"`
	Namespace  string     `json:"namespace"`
	Excerpt    string     `json:"excerpt"`
	Origin     Origin     `json:"origin"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
}

// Result holds matches ordered by descending score. Unavailable is set when
// retrieval could not run at all; Matches is then empty.
type Result struct {
	Matches     []Match
	Unavailable bool
	Reason      string
}

// DocumentLister returns a user's most recently uploaded document IDs, newest first.
type DocumentLister interface {
	RecentDocumentIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Config controls filtering and fan-out width.
type Config struct {
	RelevanceThreshold    float64
	MaxDocumentNamespaces int
	MaxPerformanceMatches int
	ExcerptChars          int
}

func (c Config) withDefaults() Config {
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.7
	}
	if c.MaxDocumentNamespaces <= 0 {
		c.MaxDocumentNamespaces = 5
	}
	if c.MaxPerformanceMatches <= 0 {
		c.MaxPerformanceMatches = 5
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = 800
	}
	return c
}

// Retriever queries the vector store on behalf of the assistants.
type Retriever struct {
	embedder embedding.Embedder
	vectors  vectorstore.Store
	docs     DocumentLister
	cfg      Config
}

// New creates a Retriever.
func New(embedder embedding.Embedder, vectors vectorstore.Store, docs DocumentLister, cfg Config) *Retriever {
	return &Retriever{embedder: embedder, vectors: vectors, docs: docs, cfg: cfg.withDefaults()}
}

func unavailable(scope, reason string) Result {
	metrics.RetrievalUnavailableTotal.WithLabelValues(scope, reason).Inc()
	return Result{Unavailable: true, Reason: reason}
}

// QueryDocumentContext returns up to topK chunks of one document, unfiltered.
func (r *Retriever) QueryDocumentContext(ctx context.Context, userID, documentID uuid.UUID, query string, topK int) Result {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("retrieval: embedding query", "error", err, "user_id", userID, "document_id", documentID)
		return unavailable("document", "embedding")
	}

	ns := vectorstore.DocumentNamespace(userID, documentID)
	found, err := r.vectors.Query(ctx, ns, vec, topK)
	if err != nil {
		slog.Warn("retrieval: querying document namespace", "error", err, "namespace", ns)
		return unavailable("document", "vector_store")
	}

	docID := documentID
	matches := make([]Match, 0, len(found))
	for _, m := range found {
		matches = append(matches, r.toMatch(m, ns, OriginPDF, &docID))
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return Result{Matches: matches}
}

type subQuery struct {
	namespace string
	origin    Origin
	docID     *uuid.UUID
	limit     int

	found []vectorstore.Match
	err   error
}

// QueryGeneralContext searches the user's performance history and their most
// recent documents concurrently. A failing namespace is skipped; the call is
// unavailable only when embedding fails or every namespace fails.
func (r *Retriever) QueryGeneralContext(ctx context.Context, userID uuid.UUID, query string, topK int) Result {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("retrieval: embedding query", "error", err, "user_id", userID)
		return unavailable("general", "embedding")
	}

	queries := []*subQuery{{
		namespace: vectorstore.PerformanceNamespace(userID),
		origin:    OriginPerformance,
		limit:     min(topK, r.cfg.MaxPerformanceMatches),
	}}

	docIDs, err := r.docs.RecentDocumentIDs(ctx, userID, r.cfg.MaxDocumentNamespaces)
	if err != nil {
		slog.Warn("retrieval: listing recent documents", "error", err, "user_id", userID)
	}
	for _, id := range docIDs {
		queries = append(queries, &subQuery{
			namespace: vectorstore.DocumentNamespace(userID, id),
			origin:    OriginPDF,
			docID:     &id,
			limit:     topK,
		})
	}

	var g errgroup.Group
	for _, q := range queries {
		g.Go(func() error {
			q.found, q.err = r.vectors.Query(ctx, q.namespace, vec, q.limit)
			return nil
		})
	}
	_ = g.Wait()

	var pool []Match
	failed := 0
	for _, q := range queries {
		if q.err != nil {
			failed++
			metrics.NamespaceQueryErrorsTotal.Inc()
			slog.Warn("retrieval: namespace query failed", "error", q.err, "namespace", q.namespace)
			continue
		}
		for _, m := range q.found {
			if q.origin == OriginPDF && m.Score <= r.cfg.RelevanceThreshold {
				continue
			}
			pool = append(pool, r.toMatch(m, q.namespace, q.origin, q.docID))
		}
	}
	if failed == len(queries) {
		return unavailable("general", "vector_store")
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	if len(pool) > topK {
		pool = pool[:topK]
	}
	return Result{Matches: pool}
}

func (r *Retriever) toMatch(m vectorstore.Match, ns string, origin Origin, docID *uuid.UUID) Match {
	return Match{
		Score:      m.Score,
		Namespace:  ns,
		Excerpt:    excerpt(m.Text, r.cfg.ExcerptChars),
		Origin:     origin,
		DocumentID: docID,
	}
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
