package bootstrap

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"campaign_worker/adapter/in/worker"
	"campaign_worker/adapter/out/messaging"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"

	"github.com/rs/zerolog"
)

type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

// NewWorker builds the job pool and, when Redis is available, the
// pipeline:run stream consumer feeding it.
func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerCount > 0 {
		poolConfig.Workers = cfg.WorkerCount
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerQueueSize
	}
	if cfg.LLMTimeoutSec > 0 {
		// 생성 단계 LLM 타임아웃보다 job 타임아웃이 짧으면 안 됨
		floor := 2 * time.Duration(cfg.LLMTimeoutSec) * time.Second
		if poolConfig.JobTimeoutByType[worker.JobPipelineRun] < floor {
			poolConfig.JobTimeoutByType[worker.JobPipelineRun] = floor
		}
	}

	pool := worker.NewPool(worker.NewHandler(deps.Pipeline), poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	// Redis Stream Consumer 설정 (Redis가 있을 때만)
	if deps.Redis != nil {
		streams := []string{messaging.StreamPipelineRun}
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                cfg.ConsumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              streams,
			Handler:              worker.NewStreamBridge(pool),
			Logger:               zlog,
			PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
			PendingIdleTime:      time.Duration(cfg.ConsumerPendingIdleSec) * time.Second,
			MaxRetries:           cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %d streams", len(streams))
	} else {
		logger.Warn("Redis not available, worker will only process in-process submissions")
	}

	return w
}

// Queue returns the producer async API runs should use: the Redis stream
// when configured, the in-process pool otherwise.
func (w *Worker) Queue() out.JobProducer {
	if w.deps.Jobs != nil {
		return w.deps.Jobs
	}
	return worker.NewLocalQueue(w.pool)
}

// Start runs the pool and the consumer and blocks until Stop.
func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return err
	}

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	<-w.ctx.Done()
	return nil
}

// Stop stops reading new entries first, then drains the pool.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.pool.Stop()
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}
