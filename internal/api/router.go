package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studybuddy-platform/studybuddy/internal/database"
	mw "github.com/studybuddy-platform/studybuddy/internal/middleware"
	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Documents
	UploadDocument    http.HandlerFunc
	ListDocuments     http.HandlerFunc
	GetDocument       http.HandlerFunc
	DeleteDocument    http.HandlerFunc
	DocumentOwnership func(http.Handler) http.Handler

	// Performance
	RecordAttempt http.HandlerFunc
	ListAttempts  http.HandlerFunc
	ListTopics    http.HandlerFunc

	// Chat sessions and messages
	CreateSession    http.HandlerFunc
	ListSessions     http.HandlerFunc
	GetSession       http.HandlerFunc
	DeleteSession    http.HandlerFunc
	ListMessages     http.HandlerFunc
	SendMessage      http.HandlerFunc
	ClearMemory      http.HandlerFunc
	SessionOwnership func(http.Handler) http.Handler

	// Activity log
	ListActivity http.HandlerFunc

	// Realtime websocket; authenticates on its own.
	Realtime http.Handler

	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	MessageRateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, redisClient *redis.Client, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(mw.CORS(cfg.CORSAllowedOrigins))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}
		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if redisClient == nil {
			health["redis"] = "not configured"
		} else if err := redisClient.Ping(r.Context()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		// Activity publishing is best-effort, so NATS never fails readiness.
		if natsClient == nil {
			health["nats"] = "not configured"
		} else if !natsClient.Healthy() {
			health["nats"] = "unhealthy"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		if h.Realtime != nil {
			r.Handle("/ws", h.Realtime)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", h.UploadDocument)
				r.Get("/", h.ListDocuments)

				r.Route("/{documentID}", func(r chi.Router) {
					r.Use(h.DocumentOwnership)
					r.Get("/", h.GetDocument)
					r.Delete("/", h.DeleteDocument)
				})
			})

			r.Route("/performance", func(r chi.Router) {
				r.Post("/attempts", h.RecordAttempt)
				r.Get("/attempts", h.ListAttempts)
				r.Get("/topics", h.ListTopics)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.CreateSession)
				r.Get("/", h.ListSessions)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Use(h.SessionOwnership)
					r.Get("/", h.GetSession)
					r.Delete("/", h.DeleteSession)
					r.Get("/messages", h.ListMessages)
					r.Delete("/memory", h.ClearMemory)

					r.Group(func(r chi.Router) {
						if cfg.MessageRateLimiter != nil {
							r.Use(cfg.MessageRateLimiter)
						}
						r.Post("/messages", h.SendMessage)
					})
				})
			})

			r.Get("/activity", h.ListActivity)
		})
	})

	return r
}
