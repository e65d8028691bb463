// Package messaging publishes pipeline jobs and events to Redis Streams and
// Kafka, and consumes pipeline jobs from Redis Streams.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamPipelineRun      = "pipeline:run"
	StreamAssignmentEvents = "events:assignment"
	StreamRunEvents        = "events:run"
	StreamDelivery         = "delivery:outbound"
)

// defaultMaxLen trims event streams approximately.
const defaultMaxLen = 100_000

// RedisProducer publishes pipeline jobs and events to Redis Streams.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, maxLen: defaultMaxLen}
}

// PublishPipelineRun enqueues one customer for the worker.
func (p *RedisProducer) PublishPipelineRun(ctx context.Context, job *out.PipelineRunJob) error {
	_, err := p.Publish(ctx, StreamPipelineRun, job)
	return err
}

func (p *RedisProducer) PublishAssignment(ctx context.Context, event *domain.AssignmentEvent) error {
	_, err := p.Publish(ctx, StreamAssignmentEvents, event)
	return err
}

func (p *RedisProducer) PublishRunCompleted(ctx context.Context, summary *domain.Summary) error {
	_, err := p.Publish(ctx, StreamRunEvents, summary)
	return err
}

// Publish appends payload as JSON under the "data" field and returns the
// stream entry id.
func (p *RedisProducer) Publish(ctx context.Context, stream string, payload any) (string, error) {
	values, err := encodeValues(payload)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return id, nil
}

func encodeValues(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return map[string]any{"data": string(data)}, nil
}

var (
	_ out.JobProducer    = (*RedisProducer)(nil)
	_ out.EventPublisher = (*RedisProducer)(nil)
)
