package http

import (
	"strings"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/in"
	"campaign_worker/core/port/out"
	"campaign_worker/core/service/experiment"
	"campaign_worker/core/service/review"
	"campaign_worker/core/service/safety"
	"campaign_worker/core/service/segment"
	"campaign_worker/pkg/apperr"
	"campaign_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// PipelineHandler exposes the coordinator and the stateless stages.
type PipelineHandler struct {
	pipeline  in.PipelineService
	segmenter *segment.Segmenter
	assigner  *experiment.Assigner
	gate      *safety.Gate
	reviews   *review.Service
	jobs      out.JobProducer
	archive   out.RunArchive
}

// PipelineHandlerConfig wires the handler. Reviews, Jobs and Archive are
// optional.
type PipelineHandlerConfig struct {
	Pipeline  in.PipelineService
	Segmenter *segment.Segmenter
	Assigner  *experiment.Assigner
	Gate      *safety.Gate
	Reviews   *review.Service
	Jobs      out.JobProducer
	Archive   out.RunArchive
}

func NewPipelineHandler(cfg PipelineHandlerConfig) *PipelineHandler {
	h := &PipelineHandler{
		pipeline:  cfg.Pipeline,
		segmenter: cfg.Segmenter,
		assigner:  cfg.Assigner,
		gate:      cfg.Gate,
		reviews:   cfg.Reviews,
		jobs:      cfg.Jobs,
		archive:   cfg.Archive,
	}
	if h.segmenter == nil {
		h.segmenter = segment.NewSegmenter()
	}
	if h.gate == nil {
		h.gate = safety.NewGate(nil, true)
	}
	return h
}

// Register mounts routes under router (normally /api/v1).
func (h *PipelineHandler) Register(router fiber.Router) {
	router.Post("/orchestrate", h.Orchestrate)
	router.Post("/segment", h.Segment)
	router.Post("/assign", h.Assign)
	router.Post("/safety", h.Safety)

	runs := router.Group("/runs")
	runs.Get("/:customer_id", h.GetSummary)
	runs.Get("/:customer_id/:stage", h.GetStage)

	router.Get("/archive/:run_id", h.GetArchivedRun)

	hitl := router.Group("/hitl")
	hitl.Get("/:review_id", h.GetReview)
	hitl.Post("/:review_id/decision", h.DecideReview)
}

// =============================================================================
// Requests
// =============================================================================

// OrchestrateRequest runs one customer through the pipeline. Async queues
// the run on the job stream instead of running it inline.
type OrchestrateRequest struct {
	Customer map[string]any `json:"customer"`
	DryRun   *bool          `json:"dry_run,omitempty"`
	Async    bool           `json:"async,omitempty"`
}

type SegmentRequest struct {
	Customer map[string]any `json:"customer"`
}

// AssignRequest buckets a user. Split, seed and experiment id override the
// configured policy when given.
type AssignRequest struct {
	UserID       string       `json:"user_id"`
	ExperimentID string       `json:"experiment_id,omitempty"`
	Seed         string       `json:"seed,omitempty"`
	Split        domain.Split `json:"split,omitempty"`
}

// ReviewDecisionRequest approves one reviewed variant, or rejects the
// review when status is "rejected".
type ReviewDecisionRequest struct {
	Status            string `json:"status,omitempty"`
	ApprovedVariantID string `json:"approved_variant_id"`
	Notes             string `json:"notes,omitempty"`
	Reviewer          string `json:"reviewer,omitempty"`
}

type SafetyRequest struct {
	Variants []domain.Variant `json:"variants"`
}

// StageResponse is returned by GET /runs/:customer_id/:stage.
type StageResponse struct {
	CustomerID string             `json:"customer_id"`
	Stage      domain.Stage       `json:"stage"`
	Output     any                `json:"output,omitempty"`
	Error      *domain.StageError `json:"error,omitempty"`
}

func parseCustomer(raw map[string]any) (domain.CustomerEvent, error) {
	if raw == nil {
		return domain.CustomerEvent{}, apperr.MissingField("customer")
	}
	return domain.CustomerEventFromMap(raw), nil
}

// =============================================================================
// Handlers
// =============================================================================

// Orchestrate runs the full pipeline. Every terminal outcome is a 200; the
// body's outcome field tells them apart.
func (h *PipelineHandler) Orchestrate(c *fiber.Ctx) error {
	var req OrchestrateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}
	customer, err := parseCustomer(req.Customer)
	if err != nil {
		return err
	}

	if req.Async {
		if h.jobs == nil {
			return apperr.Unavailable("job queue")
		}
		job := &out.PipelineRunJob{Customer: customer, DryRun: req.DryRun}
		if err := h.jobs.PublishPipelineRun(c.UserContext(), job); err != nil {
			return apperr.ExternalError("job queue", err)
		}
		return response.Accepted(c, fiber.Map{
			"queued":      true,
			"customer_id": customer.CustomerID(),
		})
	}

	state, err := h.pipeline.RunWith(c.UserContext(), customer, in.RunOptions{DryRun: req.DryRun})
	if err != nil {
		return err
	}
	return response.OK(c, state)
}

func (h *PipelineHandler) Segment(c *fiber.Ctx) error {
	var req SegmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}
	customer, err := parseCustomer(req.Customer)
	if err != nil {
		return err
	}
	return response.OK(c, h.segmenter.Segment(customer))
}

func (h *PipelineHandler) Assign(c *fiber.Ctx) error {
	var req AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return apperr.MissingField("user_id")
	}

	// 요청에 정책 override가 없으면 설정된 assigner 그대로 사용
	if len(req.Split) == 0 && req.Seed == "" && req.ExperimentID == "" && h.assigner != nil {
		return response.OK(c, h.assigner.Assign(req.UserID))
	}

	split, seed, expID := req.Split, req.Seed, req.ExperimentID
	if h.assigner != nil {
		if len(split) == 0 {
			split = h.assigner.Split()
		}
		if seed == "" {
			seed = h.assigner.Seed()
		}
		if expID == "" {
			expID = h.assigner.ExperimentID()
		}
	} else if len(split) == 0 {
		split = experiment.DefaultSplit()
	}

	assignment, err := experiment.Assign(req.UserID, expID, split, seed)
	if err != nil {
		// caller-supplied split: a bad ratio is the caller's mistake
		if ae := apperr.AsAppError(err); ae.Code == apperr.CodeConfigError {
			return apperr.InvalidInput("split", ae.Message)
		}
		return err
	}
	return response.OK(c, assignment)
}

func (h *PipelineHandler) Safety(c *fiber.Ctx) error {
	var req SafetyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}
	if req.Variants == nil {
		return apperr.MissingField("variants")
	}
	return response.OK(c, h.gate.Filter(req.Variants))
}

// GetStage returns a persisted stage output, or its error marker when the
// stage failed.
func (h *PipelineHandler) GetStage(c *fiber.Ctx) error {
	customerID := c.Params("customer_id")
	stageName := c.Params("stage")
	if stageName == "summary" {
		return h.GetSummary(c)
	}

	stage, ok := domain.ParseStage(stageName)
	if !ok {
		return apperr.InvalidInput("stage", "unknown stage "+stageName)
	}

	ctx := c.UserContext()
	var output any
	found, err := h.pipeline.GetStage(ctx, customerID, stage, &output)
	if err != nil {
		return err
	}
	marker, err := h.pipeline.GetStageError(ctx, customerID, stage)
	if err != nil {
		return err
	}
	if !found && marker == nil {
		return apperr.NotFound("stage output").
			WithDetail("customer_id", customerID).
			WithDetail("stage", stageName)
	}

	resp := StageResponse{CustomerID: customerID, Stage: stage, Error: marker}
	if found {
		resp.Output = output
	}
	return response.OK(c, resp)
}

func (h *PipelineHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.pipeline.GetSummary(c.UserContext(), c.Params("customer_id"))
	if err != nil {
		return err
	}
	return response.OK(c, summary)
}

// GetArchivedRun returns an archived run and a page of its audit trail.
func (h *PipelineHandler) GetArchivedRun(c *fiber.Ctx) error {
	if h.archive == nil {
		return apperr.Unavailable("run archive")
	}
	runID := c.Params("run_id")
	ctx := c.UserContext()

	run, err := h.archive.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	audit, err := h.archive.ListAudit(ctx, runID)
	if err != nil {
		return err
	}

	lo, hi, meta := response.GetPage(c, 50, 200).Slice(len(audit))
	return response.OKWithMeta(c, fiber.Map{
		"run":   run,
		"audit": audit[lo:hi],
	}, meta)
}

// =============================================================================
// Human review
// =============================================================================

func (h *PipelineHandler) GetReview(c *fiber.Ctx) error {
	if h.reviews == nil {
		return apperr.Unavailable("review queue")
	}
	r, err := h.reviews.Get(c.UserContext(), c.Params("review_id"))
	if err != nil {
		return err
	}
	return response.OK(c, r)
}

func (h *PipelineHandler) DecideReview(c *fiber.Ctx) error {
	if h.reviews == nil {
		return apperr.Unavailable("review queue")
	}
	var req ReviewDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}

	r, err := h.reviews.Decide(c.UserContext(), c.Params("review_id"), domain.ReviewDecision{
		Status:            domain.ReviewStatus(strings.TrimSpace(req.Status)),
		ApprovedVariantID: req.ApprovedVariantID,
		Notes:             req.Notes,
		Reviewer:          req.Reviewer,
	})
	if err != nil {
		return err
	}
	return response.OK(c, r)
}
