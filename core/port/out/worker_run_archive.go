package out

import (
	"context"
	"time"

	"campaign_worker/core/domain"
)

// AuditEntry records one action taken on a run.
type AuditEntry struct {
	RunID      string         `json:"run_id" bson:"run_id"`
	CustomerID string         `json:"customer_id" bson:"customer_id"`
	Action     string         `json:"action" bson:"action"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
}

// RunArchive keeps completed runs and their audit trail.
type RunArchive interface {
	SaveRun(ctx context.Context, state *domain.PipelineState) error
	GetRun(ctx context.Context, runID string) (*domain.PipelineState, error)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, runID string) ([]AuditEntry, error)
}
