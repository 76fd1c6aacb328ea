package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes events as JSON messages on a single topic. The
// event type travels in the "type" header.
type KafkaPublisher struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// Publish encodes and writes a single event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e.Payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", e.Type)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now()
	}

	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
