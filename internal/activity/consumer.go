package activity

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
)

const consumerName = "activity-persister"

type logInserter interface {
	Insert(ctx context.Context, log *Log) error
}

// Consumer persists activity events from JetStream into activity_logs.
type Consumer struct {
	repo        logInserter
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start runs the fetch loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamActivity, consumerName, inats.SubjectActivityPrefix+".>")
	if err != nil {
		return err
	}

	slog.Info("activity consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("activity consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg.Data(), msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

type acker interface {
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handle(ctx context.Context, data []byte, msg acker) {
	var event inats.ActivityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("activity consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, toLog(event)); err != nil {
		slog.Error("activity consumer: persisting event", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func toLog(event inats.ActivityEvent) *Log {
	log := &Log{
		ID:           event.ID,
		UserID:       event.UserID,
		EventType:    event.EventType,
		ResourceType: event.ResourceType,
		CreatedAt:    event.Timestamp,
	}
	if event.ResourceID != "" {
		if parsed, err := uuid.Parse(event.ResourceID); err == nil {
			log.ResourceID = &parsed
		}
	}
	if len(event.Details) > 0 {
		if data, err := json.Marshal(event.Details); err == nil {
			log.Details = data
		}
	}
	return log
}
