// Package notify publishes reconciliation outcomes (drift found, record
// repaired) to downstream consumers.
//
// Publishing is best effort: callers log publish failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/compare"
)

// Notification kinds.
const (
	KindDriftDetected = "reconciliation.drift_detected"
	KindRepaired      = "reconciliation.repaired"
)

// Notification describes one reconciliation outcome.
type Notification struct {
	Kind          string                `json:"kind"`
	Module        string                `json:"module"`
	ID            string                `json:"id"`
	Fields        []string              `json:"fields,omitempty"`
	Discrepancies []compare.Discrepancy `json:"discrepancies,omitempty"`
	Fingerprint   string                `json:"fingerprint,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// Key is the partition key: all notifications of one entity stay ordered.
func (n Notification) Key() string {
	return n.Module + "/" + n.ID
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// Noop drops every notification.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Notification) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// LogPublisher writes notifications to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher logging at info level. A nil logger
// uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	attrs := []any{
		"kind", n.Kind,
		"module", n.Module,
		"id", n.ID,
	}
	if len(n.Discrepancies) > 0 {
		fields := make([]string, len(n.Discrepancies))
		for i, d := range n.Discrepancies {
			fields[i] = d.Field
		}
		attrs = append(attrs, "discrepancies", fields)
	}
	if len(n.Fields) > 0 {
		attrs = append(attrs, "fields", n.Fields)
	}
	if n.Fingerprint != "" {
		attrs = append(attrs, "fingerprint", n.Fingerprint)
	}
	p.logger.InfoContext(ctx, "reconciliation notification", attrs...)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }

// Encode renders n as the JSON message body.
func Encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}
