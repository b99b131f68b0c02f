// Package notify publishes triage outcomes to NATS so other services can
// react to triaged issues without polling the tracker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/steveyegge/triage/internal/triage"
)

// DefaultSubject is used when none is configured
const DefaultSubject = "triage.outcomes"

// Publisher is the subset of *nats.Conn used here
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds NATS notifier configuration
type Config struct {
	URL     string // Empty disables publishing
	Subject string // Default: DefaultSubject
	Logger  *slog.Logger
}

// Notifier publishes one JSON message per processed event on
// "<subject>.<outcome>".
type Notifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// Connect dials NATS. With no URL it returns (nil, nil): callers treat a nil
// notifier as disabled.
func Connect(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("triage"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}

	n := New(nc, cfg.Subject, log)
	n.conn = nc
	return n, nil
}

// New wraps an existing publisher
func New(pub Publisher, subject string, log *slog.Logger) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{pub: pub, subject: subject, log: log}
}

// Message is the published payload
type Message struct {
	RunID      string `json:"run_id"`
	IssueID    string `json:"issue_id"`
	EventKind  string `json:"event_kind"`
	Outcome    string `json:"outcome"`
	State      string `json:"state,omitempty"`
	Error      string `json:"error,omitempty"`
	Subtasks   int    `json:"subtasks,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// Publish sends the result. Safe to call on a nil notifier.
func (n *Notifier) Publish(_ context.Context, res *triage.Result) error {
	if n == nil || res == nil {
		return nil
	}
	msg := Message{
		RunID:      res.RunID,
		IssueID:    res.IssueID,
		EventKind:  res.EventKind,
		Outcome:    string(res.Outcome),
		State:      string(res.State),
		Error:      res.Error,
		Subtasks:   len(res.Subtasks),
		FinishedAt: res.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	subject := n.subject + "." + string(res.Outcome)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	n.log.Debug("outcome published", "subject", subject, "run_id", res.RunID)
	return nil
}

// Close drains the connection if this notifier owns one
func (n *Notifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
