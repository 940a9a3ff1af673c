package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const defaultPublishTimeout = 2 * time.Second

type Publisher struct {
	js      jetstream.JetStream
	timeout time.Duration
}

// NewPublisher publishes activity events. A non-positive timeout uses the
// default.
func NewPublisher(js jetstream.JetStream, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{js: js, timeout: timeout}
}

// ActivitySubject is studybuddy.activity.<event type>.
func ActivitySubject(eventType string) string {
	return SubjectActivityPrefix + "." + eventType
}

// PublishActivity sends the event to the activity stream. The event ID is the
// message ID, so a retried publish is dropped by the stream's dedup window.
func (p *Publisher) PublishActivity(ctx context.Context, event ActivityEvent) error {
	subject := ActivitySubject(event.EventType)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.EventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ack, err := p.js.Publish(ctx, subject, payload,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(StreamActivity),
	)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	if ack.Duplicate {
		slog.Debug("activity event already stored", "event_id", event.ID, "seq", ack.Sequence)
	}
	return nil
}
