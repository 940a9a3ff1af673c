// Package llm produces assistant replies from a configured text generation provider.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studybuddy-platform/studybuddy/internal/config"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

// Provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderPlaceholder = "placeholder"
)

// Options tune a single generation call.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// Generator produces text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// GenerateStream forwards partial text to onChunk and returns the full reply.
	GenerateStream(ctx context.Context, prompt string, opts Options, onChunk func(string)) (string, error)
}

// New constructs the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderPlaceholder, "":
		return Placeholder{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Backend is the process-wide generator. The provider client is built on
// first use and reused afterwards; every call is bounded by cfg.Timeout.
type Backend struct {
	cfg     config.LLMConfig
	factory func(context.Context, config.LLMConfig) (Generator, error)

	once sync.Once
	gen  Generator
	err  error
}

// NewBackend creates a lazily initialised backend.
func NewBackend(cfg config.LLMConfig) *Backend {
	return &Backend{cfg: cfg, factory: New}
}

func (b *Backend) get(ctx context.Context) (Generator, error) {
	b.once.Do(func() {
		b.gen, b.err = b.factory(context.WithoutCancel(ctx), b.cfg)
	})
	return b.gen, b.err
}

func (b *Backend) Name() string {
	if b.cfg.Provider == "" {
		return ProviderPlaceholder
	}
	return b.cfg.Provider
}

func (b *Backend) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	gen, err := b.get(ctx)
	if err != nil {
		return "", fmt.Errorf("initialising %s backend: %w", b.Name(), err)
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.GenerationDuration.WithLabelValues(gen.Name()).Observe(time.Since(start).Seconds()) }()
	return gen.Generate(ctx, prompt, opts)
}

func (b *Backend) GenerateStream(ctx context.Context, prompt string, opts Options, onChunk func(string)) (string, error) {
	gen, err := b.get(ctx)
	if err != nil {
		return "", fmt.Errorf("initialising %s backend: %w", b.Name(), err)
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.GenerationDuration.WithLabelValues(gen.Name()).Observe(time.Since(start).Seconds()) }()
	return gen.GenerateStream(ctx, prompt, opts, onChunk)
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.cfg.Timeout)
}
