package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	NATS       NATSConfig
	Log        LogConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Memory     MemoryConfig
	Retrieval  RetrievalConfig
	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Vector     VectorConfig
	Documents  DocumentsConfig
	Migrations MigrationsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// NATSConfig is optional. An empty URL disables activity publishing.
type NATSConfig struct {
	URL            string
	ActivityMaxAge time.Duration
	PublishTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	AuthMaxRequests    int
	AuthWindowSec      int
	MessageMaxRequests int
	MessageWindowSec   int
}

// MemoryConfig bounds the conversation windows.
type MemoryConfig struct {
	Store            string // "local" or "redis"
	MaxTurns         int
	MaxWords         int
	MinTurns         int
	SessionTimeout   time.Duration
	RefreshThreshold time.Duration
	SweepInterval    time.Duration
	HydrateLimit     int
}

type RetrievalConfig struct {
	RelevanceThreshold    float64
	MaxDocumentNamespaces int
	MaxPerformanceMatches int
	ExcerptChars          int
	TopK                  int
}

type EmbeddingConfig struct {
	Provider   string // "openai", "gemini" or "none"
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

type LLMConfig struct {
	Provider string // "openai", "gemini" or "placeholder"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

type VectorConfig struct {
	Backend string // "pgvector" or "chromem"
	Path    string // chromem persistence directory, empty for in-memory
}

type DocumentsConfig struct {
	MaxUploadBytes  int64
	ChunkSize       int
	ChunkOverlap    int
	ProcessTimeout  time.Duration
	SummaryMaxWords int
}

type MigrationsConfig struct {
	Path    string
	AutoRun bool
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		RateLimit: RateLimitConfig{
			AuthMaxRequests:    k.Int("ratelimit.auth.max"),
			AuthWindowSec:      k.Int("ratelimit.auth.window"),
			MessageMaxRequests: k.Int("ratelimit.message.max"),
			MessageWindowSec:   k.Int("ratelimit.message.window"),
		},
		Memory: MemoryConfig{
			Store:        k.String("memory.store"),
			MaxTurns:     k.Int("memory.max.turns"),
			MaxWords:     k.Int("memory.max.words"),
			MinTurns:     k.Int("memory.min.turns"),
			HydrateLimit: k.Int("memory.hydrate.limit"),
		},
		Retrieval: RetrievalConfig{
			RelevanceThreshold:    k.Float64("retrieval.relevance.threshold"),
			MaxDocumentNamespaces: k.Int("retrieval.max.documents"),
			MaxPerformanceMatches: k.Int("retrieval.max.performance"),
			ExcerptChars:          k.Int("retrieval.excerpt.chars"),
			TopK:                  k.Int("retrieval.topk"),
		},
		Embedding: EmbeddingConfig{
			Provider:   k.String("embedding.provider"),
			Model:      k.String("embedding.model"),
			APIKey:     k.String("embedding.api.key"),
			BaseURL:    k.String("embedding.base.url"),
			Dimensions: k.Int("embedding.dimensions"),
		},
		LLM: LLMConfig{
			Provider: k.String("llm.provider"),
			Model:    k.String("llm.model"),
			APIKey:   k.String("llm.api.key"),
			BaseURL:  k.String("llm.base.url"),
		},
		Vector: VectorConfig{
			Backend: k.String("vector.backend"),
			Path:    k.String("vector.path"),
		},
		Documents: DocumentsConfig{
			MaxUploadBytes:  k.Int64("documents.max.upload.bytes"),
			ChunkSize:       k.Int("documents.chunk.size"),
			ChunkOverlap:    k.Int("documents.chunk.overlap"),
			SummaryMaxWords: k.Int("documents.summary.words"),
		},
		Migrations: MigrationsConfig{
			Path:    k.String("migrations.path"),
			AutoRun: k.Bool("migrations.autorun"),
		},
	}

	applyDefaults(cfg)

	// Parse durations
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"jwt.access.expiry", "15m", &cfg.JWT.AccessExpiry},
		{"jwt.refresh.expiry", "168h", &cfg.JWT.RefreshExpiry},
		{"server.shutdown.timeout", "30s", &cfg.Server.ShutdownTimeout},
		{"memory.session.timeout", "30m", &cfg.Memory.SessionTimeout},
		{"memory.refresh.threshold", "10m", &cfg.Memory.RefreshThreshold},
		{"memory.sweep.interval", "5m", &cfg.Memory.SweepInterval},
		{"embedding.timeout", "30s", &cfg.Embedding.Timeout},
		{"llm.timeout", "60s", &cfg.LLM.Timeout},
		{"documents.process.timeout", "30s", &cfg.Documents.ProcessTimeout},
		{"nats.activity.maxage", "720h", &cfg.NATS.ActivityMaxAge},
		{"nats.publish.timeout", "2s", &cfg.NATS.PublishTimeout},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		*d.dest, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "studybuddy"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "studybuddy"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.RateLimit.AuthMaxRequests == 0 {
		cfg.RateLimit.AuthMaxRequests = 10
	}
	if cfg.RateLimit.AuthWindowSec == 0 {
		cfg.RateLimit.AuthWindowSec = 60
	}
	if cfg.RateLimit.MessageMaxRequests == 0 {
		cfg.RateLimit.MessageMaxRequests = 30
	}
	if cfg.RateLimit.MessageWindowSec == 0 {
		cfg.RateLimit.MessageWindowSec = 60
	}

	if cfg.Memory.Store == "" {
		cfg.Memory.Store = "local"
	}
	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = 10
	}
	if cfg.Memory.MaxWords == 0 {
		cfg.Memory.MaxWords = 1500
	}
	if cfg.Memory.MinTurns == 0 {
		cfg.Memory.MinTurns = 2
	}
	if cfg.Memory.HydrateLimit == 0 {
		cfg.Memory.HydrateLimit = 10
	}

	if cfg.Retrieval.RelevanceThreshold == 0 {
		cfg.Retrieval.RelevanceThreshold = 0.7
	}
	if cfg.Retrieval.MaxDocumentNamespaces == 0 {
		cfg.Retrieval.MaxDocumentNamespaces = 5
	}
	if cfg.Retrieval.MaxPerformanceMatches == 0 {
		cfg.Retrieval.MaxPerformanceMatches = 5
	}
	if cfg.Retrieval.ExcerptChars == 0 {
		cfg.Retrieval.ExcerptChars = 800
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "none"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "placeholder"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "pgvector"
	}

	if cfg.Documents.MaxUploadBytes == 0 {
		cfg.Documents.MaxUploadBytes = 20 << 20
	}
	if cfg.Documents.ChunkSize == 0 {
		cfg.Documents.ChunkSize = 200
	}
	if cfg.Documents.ChunkOverlap == 0 {
		cfg.Documents.ChunkOverlap = 40
	}
	if cfg.Documents.SummaryMaxWords == 0 {
		cfg.Documents.SummaryMaxWords = 3000
	}
	if cfg.Migrations.Path == "" {
		cfg.Migrations.Path = "migrations"
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
