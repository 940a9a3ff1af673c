// Package embedding turns text into vectors through a configured provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/studybuddy-platform/studybuddy/internal/config"
)

// ErrUnavailable means no embedding provider is configured.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Error reports a failed embedding call. Callers degrade rather than fail.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds the embedder selected by cfg.Provider.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Disabled always fails with ErrUnavailable.
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, &Error{Provider: "none", Err: ErrUnavailable}
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] /= magnitude
	}
}
