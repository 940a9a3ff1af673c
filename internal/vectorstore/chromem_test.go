package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaces(t *testing.T) {
	user := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	doc := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t, "u_11111111-1111-1111-1111-111111111111_doc_22222222-2222-2222-2222-222222222222", DocumentNamespace(user, doc))
	assert.Equal(t, "u_11111111-1111-1111-1111-111111111111_performance", PerformanceNamespace(user))
}

func TestChromemStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore("")
	require.NoError(t, err)

	records := []Record{
		{ID: "a", Text: "cells divide", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"chunk": "0"}},
		{ID: "b", Text: "plants use light", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "mostly cells", Vector: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, store.Upsert(ctx, "ns1", records))

	t.Run("query ranks by similarity", func(t *testing.T) {
		matches, err := store.Query(ctx, "ns1", []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "c", matches[1].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
		assert.Greater(t, matches[0].Score, matches[1].Score)
		assert.Equal(t, "0", matches[0].Metadata["chunk"])
	})

	t.Run("topK larger than namespace is clamped", func(t *testing.T) {
		matches, err := store.Query(ctx, "ns1", []float32{0, 1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, matches, 3)
		assert.Equal(t, "b", matches[0].ID)
	})

	t.Run("unknown namespace is empty", func(t *testing.T) {
		matches, err := store.Query(ctx, "missing", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, "ns2", []Record{{ID: "x", Text: "old", Vector: []float32{1, 0, 0}}}))
		require.NoError(t, store.Upsert(ctx, "ns2", []Record{{ID: "x", Text: "new", Vector: []float32{1, 0, 0}}}))

		matches, err := store.Query(ctx, "ns2", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "new", matches[0].Text)
	})

	t.Run("delete namespace", func(t *testing.T) {
		require.NoError(t, store.DeleteNamespace(ctx, "ns1"))
		require.NoError(t, store.DeleteNamespace(ctx, "ns1"), "deleting twice is fine")

		matches, err := store.Query(ctx, "ns1", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
