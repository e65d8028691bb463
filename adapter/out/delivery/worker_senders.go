// Package delivery implements the outbound senders the delivery service
// hands winning variants to.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"campaign_worker/adapter/out/messaging"
	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/httputil"
	"campaign_worker/pkg/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// =============================================================================
// Mock
// =============================================================================

// MockSender records messages in memory and logs them.
type MockSender struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	log  *logger.Logger
}

func NewMockSender() *MockSender {
	return &MockSender{log: logger.WithField("component", "mock_sender")}
}

func (s *MockSender) Name() string { return "mock" }

func (s *MockSender) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "mock-" + uuid.NewString()

	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()

	s.log.WithFields(map[string]any{
		"provider_id": id,
		"recipient":   msg.Recipient,
		"variant_id":  msg.VariantID,
	}).Info("mock delivery: %s", msg.Subject)
	return id, nil
}

// Sent returns a copy of the recorded messages.
func (s *MockSender) Sent() []domain.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboundMessage(nil), s.sent...)
}

// =============================================================================
// Kafka
// =============================================================================

// KafkaSender writes messages to a delivery topic keyed by customer.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(envelope{MessageID: id, SentAt: time.Now().UTC(), OutboundMessage: msg})
	if err != nil {
		return "", err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.CustomerID),
		Value: data,
	})
	if err != nil {
		return "", fmt.Errorf("kafka delivery: %w", err)
	}
	return id, nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

// =============================================================================
// Webhook
// =============================================================================

// WebhookSender POSTs the message as JSON. The endpoint may answer with
// {"id": "..."}; otherwise the generated message id is returned.
type WebhookSender struct {
	url        string
	client     *http.Client
	headers    map[string]string
	maxRetries uint64
}

func NewWebhookSender(url string, timeout time.Duration, headers map[string]string) *WebhookSender {
	return &WebhookSender{
		url:        url,
		client:     httputil.NewClient(httputil.WebhookClientConfig(timeout)),
		headers:    headers,
		maxRetries: 2,
	}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	id := uuid.NewString()
	var resp struct {
		ID string `json:"id"`
	}

	body := envelope{MessageID: id, SentAt: time.Now().UTC(), OutboundMessage: msg}
	if err := httputil.PostJSON(ctx, s.client, s.url, s.headers, body, &resp, s.maxRetries); err != nil {
		return "", fmt.Errorf("webhook delivery: %w", err)
	}
	if resp.ID != "" {
		return resp.ID, nil
	}
	return id, nil
}

// =============================================================================
// Redis Stream
// =============================================================================

// StreamSender appends messages to the delivery:outbound stream.
type StreamSender struct {
	producer *messaging.RedisProducer
}

func NewStreamSender(producer *messaging.RedisProducer) *StreamSender {
	return &StreamSender{producer: producer}
}

func (s *StreamSender) Name() string { return "stream" }

// Send returns the stream entry id.
func (s *StreamSender) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	return s.producer.Publish(ctx, messaging.StreamDelivery, envelope{
		MessageID:       uuid.NewString(),
		SentAt:          time.Now().UTC(),
		OutboundMessage: msg,
	})
}

// envelope is the wire form shared by the remote senders.
type envelope struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
	*domain.OutboundMessage
}

var (
	_ out.MessageSender = (*MockSender)(nil)
	_ out.MessageSender = (*KafkaSender)(nil)
	_ out.MessageSender = (*WebhookSender)(nil)
	_ out.MessageSender = (*StreamSender)(nil)
)
