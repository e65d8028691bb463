package worker

import (
	"context"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/in"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/metrics"

	"github.com/go-pkgz/pool"
)

// =============================================================================
// Batch mode
// =============================================================================

// BatchOptions bound a batch run.
type BatchOptions struct {
	Concurrency int
	BatchSize   int
	DryRun      *bool
}

// BatchResult is one input row's run. State is nil when Err is set.
type BatchResult struct {
	Index      int
	CustomerID string
	State      *domain.PipelineState
	Err        error
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total    int `json:"total"`
	Winners  int `json:"winners"`
	NoWinner int `json:"no_winner"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

type batchWorker struct {
	handler *Handler
}

// Do records failures through the handler's result callback and never
// fails the group.
func (w *batchWorker) Do(ctx context.Context, msg *Message) error {
	if err := w.handler.Process(ctx, msg); err != nil {
		metrics.IncJob(msg.Type, "failed")
		return nil
	}
	metrics.IncJob(msg.Type, "ok")
	return nil
}

// RunBatch runs every customer through the pipeline on a bounded pool.
// Results come back in input order.
func RunBatch(ctx context.Context, svc in.PipelineService, customers []domain.CustomerEvent, opts BatchOptions) ([]BatchResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}

	results := make([]BatchResult, len(customers))
	handler := NewHandler(svc).OnResult(func(msg *Message, state *domain.PipelineState, err error) {
		results[msg.Index].State = state
		results[msg.Index].Err = err
	})

	wg := pool.New[*Message](opts.Concurrency, &batchWorker{handler: handler}).
		WithBatchSize(opts.BatchSize).
		WithContinueOnError()
	if err := wg.Go(ctx); err != nil {
		return nil, err
	}

	for i := range customers {
		results[i] = BatchResult{Index: i, CustomerID: customers[i].CustomerID()}

		msg := NewPipelineRunMessage(&out.PipelineRunJob{Customer: customers[i], DryRun: opts.DryRun}, SourceBatch)
		msg.Index = i
		wg.Submit(msg)
	}

	if err := wg.Close(ctx); err != nil {
		return results, err
	}
	return results, nil
}

// Summarize tallies outcomes across results.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil || r.State == nil:
			s.Errors++
		case r.State.Outcome == domain.OutcomeCompletedWithWinner:
			s.Winners++
		case r.State.Outcome == domain.OutcomeCompletedNoWinner:
			s.NoWinner++
		default:
			s.Failed++
		}
	}
	return s
}
