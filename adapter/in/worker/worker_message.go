package worker

import (
	"time"

	"campaign_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

const (
	// JobPipelineRun runs the whole pipeline for one customer.
	JobPipelineRun JobType = "pipeline.run"
)

// Source tells where a job came from. Used for logs and metrics labels.
type Source = string

const (
	SourceStream Source = "stream"
	SourceBatch  Source = "batch"
	SourceAPI    Source = "api"
)

type Message struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Source    Source          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`

	// batch 모드에서 결과를 원래 행 순서로 돌려주기 위한 인덱스
	Index int `json:"-"`
}

func NewMessage(jobType JobType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// NewPipelineRunMessage wraps a queued job. Marshal of a PipelineRunJob
// cannot fail, so the error is dropped.
func NewPipelineRunMessage(job *out.PipelineRunJob, source Source) *Message {
	msg, _ := NewMessage(JobPipelineRun, job)
	msg.Source = source
	return msg
}
