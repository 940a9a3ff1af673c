package documents

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Chunk is a window of consecutive words from a document.
type Chunk struct {
	ID    string
	Index int
	Text  string
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk returns nil for text without words. Chunk IDs are derived from the
// document ID and position so re-indexing overwrites the same records.
func (c *Chunker) Chunk(docID uuid.UUID, text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.size, len(words))
		chunks = append(chunks, Chunk{
			ID:    fmt.Sprintf("%s_%04d", docID, len(chunks)),
			Index: len(chunks),
			Text:  strings.Join(words[i:end], " "),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
