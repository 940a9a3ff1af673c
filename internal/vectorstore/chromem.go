package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

var errNoEmbedder = errors.New("chromem: vectors must be supplied by the caller")

// ChromemStore keeps one chromem collection per namespace. With an empty
// path everything lives in memory, which suits development and tests.
type ChromemStore struct {
	db *chromem.DB
}

// NewChromemStore opens a persistent database at path, or an in-memory one.
func NewChromemStore(path string) (*ChromemStore, error) {
	if path == "" {
		return &ChromemStore{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}
	slog.Info("opened chromem vector store", "path", path)
	return &ChromemStore{db: db}, nil
}

// Embeddings are always precomputed; the collection never embeds on its own.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoEmbedder
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(namespace, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("opening collection %s: %w", namespace, err)
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Embedding: rec.Vector,
			Metadata:  rec.Metadata,
		})
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upserting into %s: %w", namespace, err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	col := s.db.GetCollection(namespace, noEmbed)
	if col == nil || topK <= 0 {
		return nil, nil
	}

	// chromem rejects nResults larger than the collection.
	n := min(topK, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", namespace, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Text:     r.Content,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

func (s *ChromemStore) DeleteNamespace(_ context.Context, namespace string) error {
	if s.db.GetCollection(namespace, noEmbed) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", namespace, err)
	}
	return nil
}
