package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/studybuddy-platform/studybuddy/internal/config"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAI embeds through the OpenAI embeddings API or any compatible server.
type OpenAI struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}
}

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, &Error{Provider: "openai", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Provider: "openai", Err: errors.New("no embeddings returned")}
	}

	vec := resp.Data[0].Embedding
	normalize(vec)
	return vec, nil
}
