package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"campaign_worker/pkg/metrics"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// =============================================================================
// go-pkgz/pool 기반 Worker Pool
// =============================================================================

// ErrPoolStopped is returned by Submit once the pool is not running.
var ErrPoolStopped = errors.New("worker pool is not running")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int                       // 워커 수
	WorkerChanSize   int                       // 워커 채널 버퍼 크기
	BatchSize        int                       // 워커별 배치 크기
	JobTimeout       time.Duration             // 작업 타임아웃
	JobTimeoutByType map[JobType]time.Duration // 작업 유형별 타임아웃
	MaxRetries       int                       // 재시도 횟수, 초과하면 DLQ
	RetryBase        time.Duration             // backoff 기본 간격
	DLQSize          int
	ReportInterval   time.Duration // 0이면 주기 로그 없음
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		WorkerChanSize: 100,
		// 스트림 job은 하나씩 들어오므로 배치로 묶으면 다음 job까지 대기함
		BatchSize:  1,
		JobTimeout: 2 * time.Minute,
		JobTimeoutByType: map[JobType]time.Duration{
			JobPipelineRun: 90 * time.Second, // LLM 응답 지연 포함
		},
		MaxRetries:     3,
		RetryBase:      time.Second,
		DLQSize:        100,
		ReportInterval: time.Minute,
	}
}

// Pool runs pipeline jobs on a go-pkgz worker group.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	metrics *PoolMetrics
	log     zerolog.Logger

	// Dead Letter Queue
	dlq   chan *Message
	dlqWg sync.WaitGroup

	retryWg sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsRetried    int64
	JobsDeadLetter int64
	AvgProcessTime int64 // milliseconds
	Workers        int32
	InFlight       int32
}

// messageWorker implements pool.Worker interface for Message processing.
type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker interface.
func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.WorkerChanSize <= 0 {
		config.WorkerChanSize = 1
	}
	if config.DLQSize <= 0 {
		config.DLQSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		metrics: &PoolMetrics{Workers: int32(config.Workers)},
		log:     log.With().Str("component", "worker_pool").Logger(),
		dlq:     make(chan *Message, config.DLQSize),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start pool")
		return err
	}
	p.started = true

	p.dlqWg.Add(1)
	go p.dlqProcessor()

	if p.config.ReportInterval > 0 {
		go p.metricsReporter()
	}

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Dur("job_timeout", p.config.JobTimeout).
		Msg("worker pool started")
	return nil
}

// Stop drains queued jobs, waits for in-flight ones and closes the DLQ.
// Pending retries are dropped to the DLQ log.
func (p *Pool) Stop() {
	p.log.Info().Msg("stopping worker pool...")

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.pool.Close(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("error closing pool")
	}

	p.cancel()
	p.retryWg.Wait()

	close(p.dlq)
	p.dlqWg.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit queues msg. It blocks while the worker channels are full.
func (p *Pool) Submit(msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.pool == nil {
		return ErrPoolStopped
	}

	atomic.AddInt32(&p.metrics.InFlight, 1)
	p.pool.Submit(msg)
	return nil
}

func (p *Pool) getJobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob runs one job under its timeout and schedules a retry or a
// DLQ entry on failure. It always returns nil so one bad job never
// stops the worker group.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.InFlight, -1)

	jobCtx := ctx
	if timeout := p.getJobTimeout(msg.Type); timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := p.handler.Process(jobCtx, msg)
	if err == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	p.updateAvgProcessTime(time.Since(start).Milliseconds())

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		metrics.IncJob(msg.Type, "ok")
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if !permanent(err) && msg.Retries < p.config.MaxRetries && p.ctx.Err() == nil {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)
		metrics.IncJob(msg.Type, "retry")
		p.scheduleRetry(msg)
		return nil
	}

	atomic.AddInt64(&p.metrics.JobsFailed, 1)
	metrics.IncJob(msg.Type, "failed")
	p.deadLetter(msg)
	return nil
}

// scheduleRetry resubmits msg after base*2^retries plus up to base/2 jitter.
func (p *Pool) scheduleRetry(msg *Message) {
	base := p.config.RetryBase
	delay := base*time.Duration(1<<msg.Retries) + time.Duration(rand.Int63n(int64(base)/2+1))

	p.retryWg.Add(1)
	go func() {
		defer p.retryWg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-p.ctx.Done():
			p.deadLetter(msg)
		case <-timer.C:
			if err := p.Submit(msg); err != nil {
				p.deadLetter(msg)
			}
		}
	}()
}

func (p *Pool) deadLetter(msg *Message) {
	atomic.AddInt64(&p.metrics.JobsDeadLetter, 1)
	select {
	case p.dlq <- msg:
	default:
		p.log.Error().Str("job_id", msg.ID).Msg("DLQ full, job lost")
	}
}

func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
		return
	}
	atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
}

// dlqProcessor logs permanently failed jobs with their payload so they can
// be replayed by hand.
func (p *Pool) dlqProcessor() {
	defer p.dlqWg.Done()

	for msg := range p.dlq {
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Str("source", msg.Source).
			Int("retries", msg.Retries).
			RawJSON("payload", msg.Payload).
			Msg("DLQ: job permanently failed")
	}
}

func (p *Pool) metricsReporter() {
	ticker := time.NewTicker(p.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			m := p.GetMetrics()
			p.log.Info().
				Int64("processed", m.JobsProcessed).
				Int64("failed", m.JobsFailed).
				Int64("retried", m.JobsRetried).
				Int64("avg_process_ms", m.AvgProcessTime).
				Int32("in_flight", m.InFlight).
				Msg("worker pool metrics")
		}
	}
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		JobsDeadLetter: atomic.LoadInt64(&p.metrics.JobsDeadLetter),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		Workers:        atomic.LoadInt32(&p.metrics.Workers),
		InFlight:       atomic.LoadInt32(&p.metrics.InFlight),
	}
}
