package in

import (
	"context"

	"campaign_worker/core/domain"
)

// RunOptions tweak a single run.
type RunOptions struct {
	// DryRun overrides the delivery default when set.
	DryRun *bool
}

// PipelineService runs the segmentation-to-winner pipeline.
type PipelineService interface {
	Run(ctx context.Context, customer domain.CustomerEvent) (*domain.PipelineState, error)
	RunWith(ctx context.Context, customer domain.CustomerEvent, opts RunOptions) (*domain.PipelineState, error)
	// GetStage decodes a persisted stage output into dest.
	GetStage(ctx context.Context, customerID string, stage domain.Stage, dest any) (bool, error)
	GetStageError(ctx context.Context, customerID string, stage domain.Stage) (*domain.StageError, error)
	GetSummary(ctx context.Context, customerID string) (*domain.Summary, error)
}
