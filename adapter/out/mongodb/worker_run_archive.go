package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// Run Archive
// =============================================================================

const (
	collectionRuns  = "pipeline_runs"
	collectionAudit = "pipeline_audit"

	// auditListLimit caps ListAudit results per run.
	auditListLimit = 500
)

// RunArchive implements out.RunArchive.
type RunArchive struct {
	runs  *mongo.Collection
	audit *mongo.Collection
	// retention sets expires_at on archived runs; zero keeps them forever.
	retention time.Duration
}

func NewRunArchive(db *mongo.Database, retention time.Duration) *RunArchive {
	return &RunArchive{
		runs:      db.Collection(collectionRuns),
		audit:     db.Collection(collectionAudit),
		retention: retention,
	}
}

// EnsureIndexes creates lookup and TTL indexes.
func (a *RunArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "finished_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("create run indexes: %w", err)
	}

	_, err = a.audit.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

type runDocument struct {
	domain.PipelineState `bson:",inline"`
	ArchivedAt           time.Time  `bson:"archived_at"`
	ExpiresAt            *time.Time `bson:"expires_at,omitempty"`
}

func (a *RunArchive) SaveRun(ctx context.Context, state *domain.PipelineState) error {
	if state == nil || state.RunID == "" {
		return apperr.MissingField("run_id")
	}

	now := time.Now().UTC()
	doc := runDocument{PipelineState: *state, ArchivedAt: now}
	if a.retention > 0 {
		exp := now.Add(a.retention)
		doc.ExpiresAt = &exp
	}

	_, err := a.runs.ReplaceOne(ctx, bson.M{"run_id": state.RunID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return apperr.StoreError("archive run", err)
	}
	return nil
}

func (a *RunArchive) GetRun(ctx context.Context, runID string) (*domain.PipelineState, error) {
	var doc runDocument
	err := a.runs.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("run")
	}
	if err != nil {
		return nil, apperr.StoreError("get run", err)
	}
	return &doc.PipelineState, nil
}

func (a *RunArchive) AppendAudit(ctx context.Context, entry *out.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if _, err := a.audit.InsertOne(ctx, entry); err != nil {
		return apperr.StoreError("append audit", err)
	}
	return nil
}

func (a *RunArchive) ListAudit(ctx context.Context, runID string) ([]out.AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(auditListLimit)

	cursor, err := a.audit.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, apperr.StoreError("list audit", err)
	}
	defer cursor.Close(ctx)

	entries := make([]out.AuditEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, apperr.StoreError("decode audit", err)
	}
	return entries, nil
}

var _ out.RunArchive = (*RunArchive)(nil)
