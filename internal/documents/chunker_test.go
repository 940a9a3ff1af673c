package documents

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Chunk(t *testing.T) {
	doc := uuid.New()
	c := NewChunker(3, 1)

	chunks := c.Chunk(doc, "one two three four five six seven")
	require.Len(t, chunks, 3)
	assert.Equal(t, "one two three", chunks[0].Text)
	assert.Equal(t, "three four five", chunks[1].Text)
	assert.Equal(t, "five six seven", chunks[2].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.True(t, strings.HasPrefix(ch.ID, doc.String()+"_"))
	}

	again := c.Chunk(doc, "one two three four five six seven")
	assert.Equal(t, chunks[1].ID, again[1].ID, "chunk ids are stable")
}

func TestChunker_Edges(t *testing.T) {
	doc := uuid.New()

	assert.Nil(t, NewChunker(5, 1).Chunk(doc, "   \n\t  "))

	single := NewChunker(10, 2).Chunk(doc, "short text")
	require.Len(t, single, 1)
	assert.Equal(t, "short text", single[0].Text)

	noOverlap := NewChunker(2, 5).Chunk(doc, "a b c d")
	require.Len(t, noOverlap, 2, "overlap >= size falls back to zero overlap")
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		summary string
		points  []string
	}{
		{
			name:    "well formed",
			in:      "SUMMARY:\nCells divide by mitosis.\nKEY POINTS:\n- Prophase\n- Metaphase\n* Anaphase",
			summary: "Cells divide by mitosis.",
			points:  []string{"Prophase", "Metaphase", "Anaphase"},
		},
		{
			name:    "lowercase markers",
			in:      "summary: Photosynthesis makes sugar.\nkey points:\n- Light reactions",
			summary: "Photosynthesis makes sugar.",
			points:  []string{"Light reactions"},
		},
		{
			name:    "no markers",
			in:      "Just a paragraph.",
			summary: "Just a paragraph.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, points := parseSummary(tt.in)
			assert.Equal(t, tt.summary, summary)
			assert.Equal(t, tt.points, points)
		})
	}
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "Cell Biology", titleFromFilename("Cell Biology.pdf"))
	assert.Equal(t, "notes", titleFromFilename("../../notes.PDF"))
	assert.Equal(t, "Untitled document", titleFromFilename(".pdf"))
}
