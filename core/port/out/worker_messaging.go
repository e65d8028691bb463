package out

import (
	"context"

	"campaign_worker/core/domain"
)

// EventPublisher publishes pipeline events to downstream consumers.
type EventPublisher interface {
	PublishAssignment(ctx context.Context, event *domain.AssignmentEvent) error
	PublishRunCompleted(ctx context.Context, summary *domain.Summary) error
}

// PipelineRunJob asks a worker to run the pipeline for one customer.
type PipelineRunJob struct {
	Customer domain.CustomerEvent `json:"customer"`
	DryRun   *bool                `json:"dry_run,omitempty"`
}

// JobProducer enqueues pipeline jobs.
type JobProducer interface {
	PublishPipelineRun(ctx context.Context, job *PipelineRunJob) error
}

// NopEventPublisher drops every event.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishAssignment(context.Context, *domain.AssignmentEvent) error {
	return nil
}

func (NopEventPublisher) PublishRunCompleted(context.Context, *domain.Summary) error {
	return nil
}
