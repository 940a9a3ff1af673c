package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/studybuddy-platform/studybuddy/internal/activity"
	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/assistant"
	"github.com/studybuddy-platform/studybuddy/internal/auth"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/config"
	"github.com/studybuddy-platform/studybuddy/internal/database"
	"github.com/studybuddy-platform/studybuddy/internal/documents"
	"github.com/studybuddy-platform/studybuddy/internal/embedding"
	"github.com/studybuddy-platform/studybuddy/internal/llm"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
	mw "github.com/studybuddy-platform/studybuddy/internal/middleware"
	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
	"github.com/studybuddy-platform/studybuddy/internal/performance"
	"github.com/studybuddy-platform/studybuddy/internal/realtime"
	iredis "github.com/studybuddy-platform/studybuddy/internal/redis"
	"github.com/studybuddy-platform/studybuddy/internal/retrieval"
	"github.com/studybuddy-platform/studybuddy/internal/server"
	"github.com/studybuddy-platform/studybuddy/internal/users"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// PostgreSQL
	if cfg.Migrations.AutoRun {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.Migrations.Path); err != nil {
			return err
		}
	}

	var hooks []database.ConnectHook
	if cfg.Vector.Backend == "pgvector" {
		hooks = append(hooks, vectorstore.RegisterPgvectorTypes)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB, hooks...)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// NATS is optional: without it activity is only logged.
	var (
		natsClient *inats.Client
		recorder   activity.Recorder = activity.LogRecorder{}
	)
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Warn("nats unavailable, activity is logged only", "error", err)
			natsClient = nil
		} else {
			defer natsClient.Close()
			recorder = activity.NewNATSRecorder(inats.NewPublisher(natsClient.JetStream(), natsClient.PublishTimeout()))
		}
	}

	activityRepo := activity.NewRepository(pool)
	if natsClient != nil {
		consumer := activity.NewConsumer(activityRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("activity consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Providers
	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return err
	}
	gen := llm.NewBackend(cfg.LLM)

	var vectors vectorstore.Store
	switch cfg.Vector.Backend {
	case "chromem":
		vectors, err = vectorstore.NewChromemStore(cfg.Vector.Path)
		if err != nil {
			return err
		}
	default:
		vectors = vectorstore.NewPgvectorStore(pool)
	}

	// Conversation windows
	var windows memory.WindowStore
	if cfg.Memory.Store == "redis" {
		windows = memory.NewRedisStore(redisClient, cfg.Memory.SessionTimeout)
	} else {
		windows = memory.NewLocalStore()
	}
	cache := memory.NewCache(windows, memory.Config{
		MaxTurns:         cfg.Memory.MaxTurns,
		MaxWords:         cfg.Memory.MaxWords,
		MinTurns:         cfg.Memory.MinTurns,
		SessionTimeout:   cfg.Memory.SessionTimeout,
		RefreshThreshold: cfg.Memory.RefreshThreshold,
		HydrateLimit:     cfg.Memory.HydrateLimit,
	})
	go memory.NewSweeper(cache, cfg.Memory.SweepInterval).Run(ctx)

	// Domain services
	docSvc := documents.NewService(documents.NewRepository(pool), embedder, vectors, gen, recorder, cfg.Documents)
	docHandler := documents.NewHandler(docSvc, cfg.Documents.MaxUploadBytes)

	perfSvc := performance.NewService(performance.NewRepository(pool), docSvc, embedder, vectors, recorder)
	perfHandler := performance.NewHandler(perfSvc)

	chatRepo := chat.NewRepository(pool)
	chatSvc := chat.NewService(chatRepo, docSvc, cache)
	chatHandler := chat.NewHandler(chatSvc)

	retriever := retrieval.New(embedder, vectors, docSvc, retrieval.Config{
		RelevanceThreshold:    cfg.Retrieval.RelevanceThreshold,
		MaxDocumentNamespaces: cfg.Retrieval.MaxDocumentNamespaces,
		MaxPerformanceMatches: cfg.Retrieval.MaxPerformanceMatches,
		ExcerptChars:          cfg.Retrieval.ExcerptChars,
	})
	router := assistant.NewRouter(retriever, docSvc, perfSvc, cfg.Retrieval.TopK)
	assistantSvc := assistant.NewService(chatSvc, chat.NewHistory(chatRepo), cache, router, gen, recorder, 0)
	assistantHandler := assistant.NewHandler(assistantSvc)

	hub := realtime.NewHub(authSvc, chatSvc, assistantSvc, cfg.CORS.AllowedOrigins)

	// Rate limiting
	authLimiter := mw.NewRateLimiter(redisClient, "auth", mw.ByIP,
		cfg.RateLimit.AuthMaxRequests, cfg.RateLimit.AuthWindowSec)
	messageLimiter := mw.NewRateLimiter(redisClient, "message", auth.RateLimitKey,
		cfg.RateLimit.MessageMaxRequests, cfg.RateLimit.MessageWindowSec)

	handler := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
		MessageRateLimiter: messageLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		UploadDocument:    docHandler.Upload,
		ListDocuments:     docHandler.List,
		GetDocument:       docHandler.Get,
		DeleteDocument:    docHandler.Delete,
		DocumentOwnership: docHandler.OwnershipMiddleware,

		RecordAttempt: perfHandler.RecordAttempt,
		ListAttempts:  perfHandler.ListAttempts,
		ListTopics:    perfHandler.ListTopics,

		CreateSession:    chatHandler.Create,
		ListSessions:     chatHandler.List,
		GetSession:       chatHandler.Get,
		DeleteSession:    chatHandler.Delete,
		ListMessages:     chatHandler.ListMessages,
		SendMessage:      assistantHandler.Send,
		ClearMemory:      chatHandler.ClearMemory,
		SessionOwnership: chatHandler.OwnershipMiddleware,

		ListActivity: activity.NewHandler(activityRepo).List,

		Realtime: hub,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	srv := server.New(cfg.Server, handler)
	srv.OnShutdown(hub.Close)
	return srv.Run(ctx)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
