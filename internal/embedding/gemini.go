package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/studybuddy-platform/studybuddy/internal/config"
)

const defaultGeminiModel = "gemini-embedding-001"

// Gemini embeds through the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int32
	timeout    time.Duration
}

// NewGemini creates a Gemini embedder.
func NewGemini(ctx context.Context, cfg config.EmbeddingConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		client:     client,
		model:      model,
		dimensions: int32(cfg.Dimensions),
		timeout:    cfg.Timeout,
	}, nil
}

func (e *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	embedCfg := &genai.EmbedContentConfig{}
	if e.dimensions > 0 {
		dim := e.dimensions
		embedCfg.OutputDimensionality = &dim
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, embedCfg)
	if err != nil {
		return nil, &Error{Provider: "gemini", Err: err}
	}
	if len(res.Embeddings) == 0 {
		return nil, &Error{Provider: "gemini", Err: errors.New("no embeddings returned")}
	}

	vec := res.Embeddings[0].Values
	normalize(vec)
	return vec, nil
}
