package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by product ID, carrying the
// trace context in message headers.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

var _ port.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, timeout: 5 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier)+1)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", e.Type, err)
		}
		msgHeaders := append([]kafka.Header{{Key: "event-type", Value: []byte(e.Type)}}, headers...)
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.ProductID),
			Value:   payload,
			Headers: msgHeaders,
			Time:    e.OccurredAt,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops events. It is used when no broker is configured.
type NoopPublisher struct{}

var _ port.EventPublisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, ...domain.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
