//go:build integration

package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/database/dbtest"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

// axis returns a unit vector of the column width pointing mostly along dim i.
func axis(i int, tilt float32) []float32 {
	v := make([]float32, 768)
	v[i] = 1
	v[(i+1)%len(v)] = tilt
	return v
}

func TestPgvectorStore(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewPgvectorStore(dbtest.NewPool(t))

	require.NoError(t, store.Upsert(ctx, "ns1", []vectorstore.Record{
		{ID: "a", Text: "cells divide", Vector: axis(0, 0), Metadata: map[string]string{"chunk_index": "0"}},
		{ID: "b", Text: "plants use light", Vector: axis(5, 0)},
		{ID: "c", Text: "mostly cells", Vector: axis(0, 0.3)},
	}))
	require.NoError(t, store.Upsert(ctx, "ns2", []vectorstore.Record{
		{ID: "a", Text: "other namespace", Vector: axis(0, 0)},
	}))

	t.Run("query ranks by cosine similarity", func(t *testing.T) {
		matches, err := store.Query(ctx, "ns1", axis(0, 0), 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "c", matches[1].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
		assert.Equal(t, "0", matches[0].Metadata["chunk_index"])
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, "ns1", []vectorstore.Record{
			{ID: "b", Text: "photosynthesis", Vector: axis(5, 0)},
		}))
		matches, err := store.Query(ctx, "ns1", axis(5, 0), 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "photosynthesis", matches[0].Text)
	})

	t.Run("unknown namespace is empty", func(t *testing.T) {
		matches, err := store.Query(ctx, "missing", axis(0, 0), 3)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("delete namespace leaves others", func(t *testing.T) {
		require.NoError(t, store.DeleteNamespace(ctx, "ns1"))

		matches, err := store.Query(ctx, "ns1", axis(0, 0), 3)
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = store.Query(ctx, "ns2", axis(0, 0), 3)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}
