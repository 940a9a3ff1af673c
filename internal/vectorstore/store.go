// Package vectorstore holds embedded text chunks in per-owner namespaces.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Record is one embedded chunk to store.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Match is a stored chunk returned by a similarity query.
// Score is cosine similarity, higher is closer.
type Match struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Store is a namespaced vector index. Querying a namespace that does not
// exist returns no matches and no error.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// DocumentNamespace holds the chunks of one uploaded document.
func DocumentNamespace(userID, documentID uuid.UUID) string {
	return fmt.Sprintf("u_%s_doc_%s", userID.String(), documentID.String())
}

// PerformanceNamespace holds a user's quiz attempt summaries.
func PerformanceNamespace(userID uuid.UUID) string {
	return fmt.Sprintf("u_%s_performance", userID.String())
}
