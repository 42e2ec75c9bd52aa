// Package events publishes build reports to NATS JetStream so downstream
// consumers (deploy hooks, dashboards) can react to builds.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/sitegen/internal/config"
)

// BuildEvent is the payload published after every completed build.
type BuildEvent struct {
	BuildID   string    `json:"build_id"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
	Rebuilt   int       `json:"rebuilt"`
	Deleted   int       `json:"deleted"`
	Unchanged int       `json:"unchanged"`
	Reason    string    `json:"reason"`
	Duration  string    `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers build events. The Noop implementation is used when
// events are disabled; publishing failures never fail a build.
type Publisher interface {
	Publish(ctx context.Context, event BuildEvent) error
	Close() error
}

// NoopPublisher drops all events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, BuildEvent) error { return nil }
func (NoopPublisher) Close() error                              { return nil }

// NATSPublisher publishes build events to a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	log     *slog.Logger
}

// NewNATSPublisher connects to NATS and prepares the JetStream context.
func NewNATSPublisher(cfg config.EventsConfig, log *slog.Logger) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("event publishing is disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	log.Info("event publisher connected", slog.String("url", cfg.URL), slog.String("subject", cfg.Subject))
	return &NATSPublisher{conn: conn, js: js, subject: cfg.Subject, log: log}, nil
}

// Publish sends one build event.
func (p *NATSPublisher) Publish(ctx context.Context, event BuildEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal build event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish build event: %w", err)
	}

	p.log.Debug("published build event",
		slog.String("build_id", event.BuildID), slog.String("outcome", event.Outcome))
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
