package worker

import (
	"context"

	"campaign_worker/adapter/out/messaging"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/apperr"
	"campaign_worker/pkg/logger"

	"github.com/goccy/go-json"
)

// StreamBridge hands Redis stream entries to the pool. The consumer acks
// an entry once it is queued; retries from then on belong to the pool.
type StreamBridge struct {
	pool *Pool
}

func NewStreamBridge(p *Pool) *StreamBridge {
	return &StreamBridge{pool: p}
}

// Handle implements messaging.JobHandler. Decode failures are returned so
// the entry stays pending and ends in the stream dead letter.
func (b *StreamBridge) Handle(_ context.Context, stream string, data []byte) error {
	switch stream {
	case messaging.StreamPipelineRun:
		var job out.PipelineRunJob
		if err := json.Unmarshal(data, &job); err != nil {
			return apperr.BadRequest("invalid pipeline job").WithError(err)
		}
		return b.pool.Submit(NewPipelineRunMessage(&job, SourceStream))
	default:
		logger.Warn("no handler for stream %s", stream)
		return nil
	}
}

var _ messaging.JobHandler = (*StreamBridge)(nil)

// LocalQueue implements out.JobProducer on the in-process pool. Used for
// async API runs when no Redis stream is configured.
type LocalQueue struct {
	pool *Pool
}

func NewLocalQueue(p *Pool) *LocalQueue {
	return &LocalQueue{pool: p}
}

func (q *LocalQueue) PublishPipelineRun(_ context.Context, job *out.PipelineRunJob) error {
	if err := q.pool.Submit(NewPipelineRunMessage(job, SourceAPI)); err != nil {
		return apperr.Unavailable("worker pool").WithError(err)
	}
	return nil
}

var _ out.JobProducer = (*LocalQueue)(nil)
