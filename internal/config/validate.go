package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PgvectorDimensions is the width of vector_records.embedding in the
// migrations.
const PgvectorDimensions = 768

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Conversation windows
	m := c.Memory
	if m.Store != "local" && m.Store != "redis" {
		errs = append(errs, fmt.Sprintf("MEMORY_STORE must be local or redis, got %q", m.Store))
	}
	if m.MaxTurns < 1 {
		errs = append(errs, "MEMORY_MAX_TURNS must be positive")
	}
	if m.MinTurns < 0 || m.MinTurns > m.MaxTurns {
		errs = append(errs, "MEMORY_MIN_TURNS must be between 0 and MEMORY_MAX_TURNS")
	}
	if m.MaxWords < 1 {
		errs = append(errs, "MEMORY_MAX_WORDS must be positive")
	}
	if m.SessionTimeout <= 0 {
		errs = append(errs, "MEMORY_SESSION_TIMEOUT must be positive")
	}
	if m.RefreshThreshold <= 0 || m.RefreshThreshold > m.SessionTimeout {
		errs = append(errs, "MEMORY_REFRESH_THRESHOLD must be positive and not exceed MEMORY_SESSION_TIMEOUT")
	}
	if m.SweepInterval <= 0 {
		errs = append(errs, "MEMORY_SWEEP_INTERVAL must be positive")
	}

	// Retrieval
	if c.Retrieval.RelevanceThreshold < 0 || c.Retrieval.RelevanceThreshold > 1 {
		errs = append(errs, "RETRIEVAL_RELEVANCE_THRESHOLD must be within [0, 1]")
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, "RETRIEVAL_TOPK must be positive")
	}

	// Providers
	switch c.Embedding.Provider {
	case "none":
		slog.Warn("EMBEDDING_PROVIDER is none; retrieval will always fall back")
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			errs = append(errs, "EMBEDDING_API_KEY is required for provider "+c.Embedding.Provider)
		}
	default:
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be openai, gemini or none, got %q", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case "placeholder":
		slog.Warn("LLM_PROVIDER is placeholder; assistant replies are not AI generated")
	case "openai", "gemini":
		if c.LLM.APIKey == "" {
			errs = append(errs, "LLM_API_KEY is required for provider "+c.LLM.Provider)
		}
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be openai, gemini or placeholder, got %q", c.LLM.Provider))
	}
	switch c.Vector.Backend {
	case "pgvector":
		// Provider "none" embeds nothing, so the column width never comes into play.
		if c.Embedding.Provider != "none" && c.Embedding.Dimensions != PgvectorDimensions {
			errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be %d with the pgvector backend, got %d",
				PgvectorDimensions, c.Embedding.Dimensions))
		}
	case "chromem":
	default:
		errs = append(errs, fmt.Sprintf("VECTOR_BACKEND must be pgvector or chromem, got %q", c.Vector.Backend))
	}

	if c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		errs = append(errs, "DOCUMENTS_CHUNK_OVERLAP must be smaller than DOCUMENTS_CHUNK_SIZE")
	}

	// NATS: warn only
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty; activity events are logged locally only")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
