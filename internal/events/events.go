// Package events publishes domain notifications (order lifecycle, payment
// alerts) to downstream consumers.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Type names an event stream entry.
type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderStatusChanged Type = "order.status_changed"
	// PaymentOrphaned is raised when a confirmed charge has no order record.
	PaymentOrphaned Type = "payment.orphaned"
)

// Event is a single notification. Key selects the partition; Payload must be
// JSON-serializable.
type Event struct {
	Type       Type
	Key        string
	OccurredAt time.Time
	Payload    any
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to a zap logger. Used when no broker is
// configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher returns a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.lg.Info("Event",
		zap.String("type", string(e.Type)),
		zap.String("key", e.Key),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("payload", e.Payload),
	)
	return nil
}
