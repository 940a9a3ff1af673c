package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/studybuddy-platform/studybuddy/internal/config"
)

const (
	clientName = "studybuddy-api"

	// Publisher retries carry the same message ID, so the window only has
	// to outlast a retry loop.
	dedupWindow = 2 * time.Minute

	defaultActivityMaxAge = 30 * 24 * time.Hour
)

// Client owns the NATS connection and the activity stream.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream

	publishTimeout time.Duration
}

func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	c := &Client{conn: nc, js: js, publishTimeout: cfg.PublishTimeout}

	maxAge := cfg.ActivityMaxAge
	if maxAge <= 0 {
		maxAge = defaultActivityMaxAge
	}
	if err := c.ensureActivityStream(ctx, maxAge); err != nil {
		nc.Close()
		return nil, err
	}

	slog.Info("nats client ready", "url", cfg.URL, "stream", StreamActivity)
	return c, nil
}

func (c *Client) ensureActivityStream(ctx context.Context, maxAge time.Duration) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamActivity,
		Description: "user activity: uploads, quiz results, assistant turns",
		Subjects:    []string{SubjectActivityPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      maxAge,
		Duplicates:  dedupWindow,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", StreamActivity, err)
	}
	return nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// PublishTimeout is the per-event budget handed to publishers.
func (c *Client) PublishTimeout() time.Duration {
	return c.publishTimeout
}

// Healthy reports whether the connection is up. A nil client is not.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Close drains in-flight publishes before closing.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining nats connection", "error", err)
	}
}
