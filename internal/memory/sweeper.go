package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

// Sweeper periodically evicts expired windows until its context is cancelled.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{cache: cache, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("memory sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("memory sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.cache.SweepExpired(ctx, s.cache.now())
	if err != nil {
		slog.Warn("memory: sweeping expired windows", "error", err)
	}
	if removed > 0 {
		metrics.WindowsSweptTotal.Add(float64(removed))
		slog.Debug("memory: swept expired windows", "count", removed)
	}
}
