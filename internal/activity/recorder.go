package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
)

// Recorder accepts activity events. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, event inats.ActivityEvent)
}

// NewEvent builds an event stamped with a fresh ID and the current time.
func NewEvent(userID uuid.UUID, eventType, resourceType, resourceID string, details map[string]string) inats.ActivityEvent {
	return inats.ActivityEvent{
		ID:           uuid.New(),
		UserID:       userID,
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	}
}

type eventPublisher interface {
	PublishActivity(ctx context.Context, event inats.ActivityEvent) error
}

// NATSRecorder publishes events to JetStream for the consumer to persist.
type NATSRecorder struct {
	pub eventPublisher
}

func NewNATSRecorder(pub *inats.Publisher) *NATSRecorder {
	return &NATSRecorder{pub: pub}
}

func (r *NATSRecorder) Record(ctx context.Context, event inats.ActivityEvent) {
	BestEffort(ctx, "activity_publish", func(ctx context.Context) error {
		return r.pub.PublishActivity(ctx, event)
	})
}

// LogRecorder only logs events. Used when NATS is not configured.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, event inats.ActivityEvent) {
	slog.Debug("activity",
		"event_type", event.EventType,
		"user_id", event.UserID,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
	)
}
