// Package events publishes graph mutation notifications over NATS.
//
// Publishing is strictly best-effort and off by default: a nil publisher
// degrades to a no-op, and a publish failure never fails the ingestion
// that triggered it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the publish subject when none is configured.
const DefaultSubject = "kgraph.document.ingested"

// Triple is one committed assertion in the event payload.
type Triple struct {
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// DocumentIngested is the message published after a successful commit.
type DocumentIngested struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Filename    string    `json:"filename"`
	Triples     []Triple  `json:"triples"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Publisher publishes ingestion events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a Publisher on the given subject.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("kgraph"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishDocumentIngested publishes a commit notification. A nil
// Publisher skips publishing (graceful degradation when events are not
// configured).
func (p *Publisher) PublishDocumentIngested(ctx context.Context, msg DocumentIngested) error {
	if p == nil || p.conn == nil {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}

	p.logger.Debug("published ingest event",
		"subject", p.subject,
		"doc_id", msg.ID,
		"triples", len(msg.Triples))
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}
