package worker

import (
	"context"
	"time"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/in"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/apperr"
	"campaign_worker/pkg/logger"

	"github.com/goccy/go-json"
)

// ResultFunc receives every finished pipeline job. state is nil when the
// payload could not be decoded or the run returned an error.
type ResultFunc func(msg *Message, state *domain.PipelineState, err error)

type Handler struct {
	pipeline in.PipelineService
	onResult ResultFunc
}

func NewHandler(pipeline in.PipelineService) *Handler {
	return &Handler{pipeline: pipeline}
}

// OnResult registers a callback run after each pipeline job.
func (h *Handler) OnResult(fn ResultFunc) *Handler {
	h.onResult = fn
	return h
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobPipelineRun:
		return h.processPipelineRun(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func (h *Handler) processPipelineRun(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.PipelineRunJob](msg)
	if err != nil {
		err = apperr.BadRequest("invalid pipeline job payload").WithError(err)
		h.report(msg, nil, err)
		return err
	}

	ctx = context.WithValue(ctx, logger.CustomerIDKey, job.Customer.CustomerID())
	start := time.Now()

	state, err := h.pipeline.RunWith(ctx, job.Customer, in.RunOptions{DryRun: job.DryRun})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("pipeline job %s failed", msg.ID)
		h.report(msg, nil, err)
		return err
	}

	logger.WithContext(ctx).
		WithDuration(time.Since(start)).
		WithFields(map[string]any{
			"job_id":  msg.ID,
			"source":  msg.Source,
			"run_id":  state.RunID,
			"outcome": state.Outcome,
		}).
		Info("pipeline job done")

	h.report(msg, state, nil)
	return nil
}

func (h *Handler) report(msg *Message, state *domain.PipelineState, err error) {
	if h.onResult != nil {
		h.onResult(msg, state, err)
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// permanent reports whether retrying msg can never succeed.
func permanent(err error) bool {
	return apperr.IsCode(err, apperr.CodeBadRequest) ||
		apperr.IsCode(err, apperr.CodeInvalidInput) ||
		apperr.IsCode(err, apperr.CodeMissingField)
}
