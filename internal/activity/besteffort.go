package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

// BestEffort runs fn and swallows its failure. Errors and panics are logged
// and counted under op; the caller always continues.
func BestEffort(ctx context.Context, op string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BestEffortFailuresTotal.WithLabelValues(op).Inc()
			slog.Error("best-effort operation panicked", "op", op, "panic", fmt.Sprint(r))
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.BestEffortFailuresTotal.WithLabelValues(op).Inc()
		slog.Warn("best-effort operation failed", "op", op, "error", err)
	}
}
