package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studybuddy-platform/studybuddy/internal/config"
)

// Conversation windows and rate limits sit on the request path, so commands
// fail fast instead of stalling a reply.
const (
	dialTimeout = 5 * time.Second
	opTimeout   = 2 * time.Second
)

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "studybuddy",
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	slog.Info("redis client ready", "addr", cfg.Addr(), "db", cfg.DB)
	return client, nil
}
