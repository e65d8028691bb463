package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"

	"github.com/segmentio/kafka-go"
)

// Event types carried in the "event_type" header.
const (
	EventAssignment   = "assignment"
	EventRunCompleted = "run_completed"
)

// KafkaEventPublisher writes pipeline events to one topic, keyed by
// customer so a customer's events stay ordered within a partition.
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(brokers []string, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaEventPublisher) PublishAssignment(ctx context.Context, event *domain.AssignmentEvent) error {
	msg, err := eventMessage(EventAssignment, event.Assignment.UserID, event)
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

func (p *KafkaEventPublisher) PublishRunCompleted(ctx context.Context, summary *domain.Summary) error {
	msg, err := eventMessage(EventRunCompleted, summary.CustomerID, summary)
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

func (p *KafkaEventPublisher) write(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

func eventMessage(eventType, key string, payload any) (kafka.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}, nil
}

var _ out.EventPublisher = (*KafkaEventPublisher)(nil)
