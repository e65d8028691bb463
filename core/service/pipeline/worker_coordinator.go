// Package pipeline sequences the campaign stages for one customer and
// persists every stage output before moving on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaign_worker/core/agent/rag"
	"campaign_worker/core/domain"
	"campaign_worker/core/port/in"
	"campaign_worker/core/port/out"
	"campaign_worker/core/service/analytics"
	"campaign_worker/core/service/delivery"
	"campaign_worker/core/service/experiment"
	"campaign_worker/core/service/generation"
	"campaign_worker/core/service/review"
	"campaign_worker/core/service/safety"
	"campaign_worker/core/service/segment"
	"campaign_worker/pkg/apperr"
	"campaign_worker/pkg/logger"
	"campaign_worker/pkg/metrics"
	"campaign_worker/pkg/snowflake"

	"github.com/google/uuid"
)

const (
	// sideEffectTimeout bounds event publishing and archiving after a run.
	sideEffectTimeout = 3 * time.Second
)

// Config wires the coordinator. Store is required; everything else has a
// usable default.
type Config struct {
	Store     out.StateStore
	Segmenter *segment.Segmenter
	Retriever *rag.Retriever
	Generator *generation.Generator
	Assigner  *experiment.Assigner
	Gate      *safety.Gate
	Review    *review.Service
	Selector  *analytics.Selector
	Delivery  *delivery.Service
	Events    out.EventPublisher
	Archive   out.RunArchive
	IDs       *snowflake.Generator
	TopK      int
}

// Coordinator implements in.PipelineService.
type Coordinator struct {
	store     out.StateStore
	segmenter *segment.Segmenter
	retriever *rag.Retriever
	generator *generation.Generator
	assigner  *experiment.Assigner
	gate      *safety.Gate
	review    *review.Service
	selector  *analytics.Selector
	delivery  *delivery.Service
	events    out.EventPublisher
	archive   out.RunArchive
	ids       *snowflake.Generator
	topK      int

	now func() time.Time
	log *logger.Logger
}

var _ in.PipelineService = (*Coordinator)(nil)

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, apperr.ConfigError("pipeline coordinator requires a state store")
	}

	c := &Coordinator{
		store:     cfg.Store,
		segmenter: cfg.Segmenter,
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		assigner:  cfg.Assigner,
		gate:      cfg.Gate,
		review:    cfg.Review,
		selector:  cfg.Selector,
		delivery:  cfg.Delivery,
		events:    cfg.Events,
		archive:   cfg.Archive,
		ids:       cfg.IDs,
		topK:      cfg.TopK,
		now:       time.Now,
		log:       logger.WithField("component", "pipeline"),
	}

	if c.segmenter == nil {
		c.segmenter = segment.NewSegmenter()
	}
	if c.retriever == nil {
		c.retriever = rag.NewRetriever(nil, rag.DefaultTopK)
	}
	if c.generator == nil {
		c.generator = generation.NewGenerator(nil)
	}
	if c.assigner == nil {
		a, err := experiment.NewAssigner(experiment.DefaultSplit(), experiment.DefaultSeed, experiment.DefaultExperimentID)
		if err != nil {
			return nil, err
		}
		c.assigner = a
	}
	if c.gate == nil {
		c.gate = safety.NewGate(nil, true)
	}
	if c.review == nil {
		c.review = review.NewService(c.store).WithArchive(c.archive)
	}
	if c.selector == nil {
		c.selector = analytics.NewSelector()
	}
	if c.delivery == nil {
		c.delivery = delivery.NewService(nil, true)
	}
	if c.events == nil {
		c.events = out.NopEventPublisher{}
	}
	if c.topK <= 0 {
		c.topK = c.retriever.TopK()
	}
	return c, nil
}

// =============================================================================
// Run
// =============================================================================

// stageFunc fills in one stage's output on state.
type stageFunc func(ctx context.Context, state *domain.PipelineState) error

func (c *Coordinator) Run(ctx context.Context, customer domain.CustomerEvent) (*domain.PipelineState, error) {
	return c.RunWith(ctx, customer, in.RunOptions{})
}

// RunWith executes every stage in order. A failing stage is recorded on
// the returned state and in the store; it is not returned as an error.
func (c *Coordinator) RunWith(ctx context.Context, customer domain.CustomerEvent, opts in.RunOptions) (*domain.PipelineState, error) {
	dryRun := c.delivery.DryRun()
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}

	state := &domain.PipelineState{
		RunID:      c.nextRunID(),
		CustomerID: customer.CustomerID(),
		Customer:   &customer,
		StartedAt:  c.now(),
	}
	log := c.log.WithContext(ctx).WithFields(map[string]any{
		"run_id":      state.RunID,
		"customer_id": state.CustomerID,
	})

	c.reset(ctx, state.CustomerID)

	stages := []struct {
		stage domain.Stage
		fn    stageFunc
	}{
		{domain.StageSegment, c.segmentStage},
		{domain.StageCitations, c.citationStage},
		{domain.StageVariants, c.variantStage},
		{domain.StageAssignment, c.assignmentStage},
		{domain.StageSafety, c.safetyStage},
		{domain.StageReview, c.reviewStage},
		{domain.StageAnalysis, c.analysisStage},
		{domain.StageDelivery, func(ctx context.Context, s *domain.PipelineState) error {
			s.Delivery = c.delivery.DeliverWith(ctx, s, dryRun)
			return nil
		}},
	}

	for _, st := range stages {
		if err := c.execStage(ctx, state, st.stage, st.fn); err != nil {
			failure := c.recordFailure(ctx, state, st.stage, err)
			log.WithError(failure).WithStage(string(st.stage)).Error("pipeline stage failed")
			break
		}
	}

	if state.Outcome == "" {
		state.Outcome = domain.OutcomeCompletedNoWinner
		if state.Analysis.HasWinner() {
			state.Outcome = domain.OutcomeCompletedWithWinner
		}
	}
	state.FinishedAt = c.now()
	metrics.IncRunOutcome(string(state.Outcome))

	c.finish(ctx, state)

	log.WithDuration(state.FinishedAt.Sub(state.StartedAt)).
		WithField("outcome", state.Outcome).
		Info("pipeline run finished")
	return state, nil
}

// execStage runs fn and persists its output. Panics inside fn become
// stage errors. A cancelled context fails the stage before it starts.
func (c *Coordinator) execStage(ctx context.Context, state *domain.PipelineState, stage domain.Stage, fn stageFunc) (err error) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s stage: %v", stage, r)
		}
		metrics.ObserveStage(string(stage), c.now().Sub(start), err)
	}()

	if err = ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Timeout(string(stage)).WithError(err)
		}
		return err
	}
	if err = fn(ctx, state); err != nil {
		return err
	}

	key := domain.StageKey(state.CustomerID, stage)
	if err = c.store.Set(ctx, key, state.StageOutput(stage)); err != nil {
		return apperr.StoreError("set "+key, err)
	}
	return nil
}

// recordFailure marks the run failed and writes the error marker. The
// marker is written even when ctx is already cancelled.
func (c *Coordinator) recordFailure(ctx context.Context, state *domain.PipelineState, stage domain.Stage, err error) *apperr.AppError {
	failure := apperr.StageFailed(string(stage), err)
	marker := domain.StageError{
		Stage:    stage,
		Message:  failure.Error(),
		FailedAt: c.now(),
	}
	state.Errors = append(state.Errors, marker)
	state.Outcome = domain.OutcomeFailedAtStage
	state.FailedStage = stage

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	key := domain.StageErrorKey(state.CustomerID, stage)
	if serr := c.store.Set(writeCtx, key, marker); serr != nil {
		c.log.WithError(serr).WithField("key", key).Warn("failed to persist stage error marker")
	}
	return failure
}

// reset deletes the keys an earlier run of the same customer left behind,
// so reads never mix two runs. Review records are kept.
func (c *Coordinator) reset(ctx context.Context, customerID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	keys := make([]string, 0, 2*len(domain.PipelineStages)+1)
	for _, stage := range domain.PipelineStages {
		keys = append(keys, domain.StageKey(customerID, stage), domain.StageErrorKey(customerID, stage))
	}
	keys = append(keys, domain.SummaryKey(customerID))

	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("failed to clear previous run state")
		}
	}
}

// finish writes the summary and runs best-effort side effects.
func (c *Coordinator) finish(ctx context.Context, state *domain.PipelineState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	summary := state.Summarize()
	if err := c.store.Set(ctx, domain.SummaryKey(state.CustomerID), summary); err != nil {
		c.log.WithError(err).WithField("customer_id", state.CustomerID).Warn("failed to persist run summary")
	}
	if err := c.events.PublishRunCompleted(ctx, &summary); err != nil {
		c.log.WithError(err).Warn("failed to publish run completed event")
	}

	if c.archive == nil {
		return
	}
	if err := c.archive.SaveRun(ctx, state); err != nil {
		c.log.WithError(err).WithField("run_id", state.RunID).Warn("failed to archive run")
		return
	}
	entry := &out.AuditEntry{
		RunID:      state.RunID,
		CustomerID: state.CustomerID,
		Action:     "run." + string(state.Outcome),
		Metadata: map[string]any{
			"failed_stage": string(state.FailedStage),
			"winner_id":    summary.WinnerID,
			"delivery":     summary.Delivery,
		},
		Timestamp: state.FinishedAt,
	}
	if err := c.archive.AppendAudit(ctx, entry); err != nil {
		c.log.WithError(err).WithField("run_id", state.RunID).Warn("failed to append audit entry")
	}
}

func (c *Coordinator) nextRunID() string {
	if c.ids != nil {
		if id, err := c.ids.NextRunID(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// =============================================================================
// Stages
// =============================================================================

func (c *Coordinator) segmentStage(_ context.Context, state *domain.PipelineState) error {
	seg := c.segmenter.Segment(*state.Customer)
	state.Segment = &seg
	return nil
}

func (c *Coordinator) citationStage(ctx context.Context, state *domain.PipelineState) error {
	state.Citations = c.retriever.Retrieve(ctx, state.Segment, c.topK)
	return nil
}

func (c *Coordinator) variantStage(ctx context.Context, state *domain.PipelineState) error {
	variants := c.generator.Generate(ctx, state.Customer, state.Segment, state.Citations)
	if len(variants) < generation.MinVariants {
		return fmt.Errorf("generator returned %d variants, need at least %d", len(variants), generation.MinVariants)
	}
	state.Variants = variants
	return nil
}

func (c *Coordinator) assignmentStage(ctx context.Context, state *domain.PipelineState) error {
	ids := make([]string, 0, len(state.Variants))
	for _, v := range state.Variants {
		ids = append(ids, v.ID)
	}

	split := c.assigner.Split()
	if !sameIDs(split.IDs(), ids) {
		split = experiment.EqualSplit(ids)
	}

	a, err := experiment.Assign(state.CustomerID, c.assigner.ExperimentID(), split, c.assigner.Seed())
	if err != nil {
		return err
	}
	state.Assignment = &a

	event := &domain.AssignmentEvent{
		Assignment: a,
		RunID:      state.RunID,
		AssignedAt: c.now(),
	}
	for _, v := range state.Variants {
		if v.ID == a.VariantID {
			event.Subject, event.Body = v.Subject, v.Body
			break
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := c.events.PublishAssignment(pubCtx, event); err != nil {
		c.log.WithError(err).WithField("run_id", state.RunID).Warn("failed to publish assignment event")
	}
	return nil
}

func (c *Coordinator) safetyStage(_ context.Context, state *domain.PipelineState) error {
	result := c.gate.Filter(state.Variants)
	for _, b := range result.Blocked {
		kind, _, _ := strings.Cut(b.Reason, ":")
		metrics.IncSafetyBlocked(kind)
	}
	state.Safety = &result
	return nil
}

func (c *Coordinator) reviewStage(ctx context.Context, state *domain.PipelineState) error {
	ticket, err := c.review.Open(ctx, state.RunID, state.Customer, state.Safety.Safe)
	if err != nil {
		return err
	}
	state.Review = ticket
	return nil
}

func (c *Coordinator) analysisStage(_ context.Context, state *domain.PipelineState) error {
	sel := c.selector.Evaluate(state.Safety.Safe, state.Customer, len(state.Safety.Blocked))
	state.Analysis = &sel
	return nil
}

// sameIDs reports whether a and b hold the same set of ids.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// =============================================================================
// Reads
// =============================================================================

func (c *Coordinator) GetStage(ctx context.Context, customerID string, stage domain.Stage, dest any) (bool, error) {
	if _, ok := domain.ParseStage(string(stage)); !ok {
		return false, apperr.InvalidInput("stage", fmt.Sprintf("unknown stage %q", stage))
	}
	found, err := c.store.Get(ctx, domain.StageKey(customerID, stage), dest)
	if err != nil {
		return false, apperr.StoreError("get stage", err)
	}
	return found, nil
}

// GetStageError returns the failure marker for a stage, or nil.
func (c *Coordinator) GetStageError(ctx context.Context, customerID string, stage domain.Stage) (*domain.StageError, error) {
	var marker domain.StageError
	found, err := c.store.Get(ctx, domain.StageErrorKey(customerID, stage), &marker)
	if err != nil {
		return nil, apperr.StoreError("get stage error", err)
	}
	if !found {
		return nil, nil
	}
	return &marker, nil
}

func (c *Coordinator) GetSummary(ctx context.Context, customerID string) (*domain.Summary, error) {
	var s domain.Summary
	found, err := c.store.Get(ctx, domain.SummaryKey(customerID), &s)
	if err != nil {
		return nil, apperr.StoreError("get summary", err)
	}
	if !found {
		return nil, apperr.NotFound("run summary")
	}
	return &s, nil
}
