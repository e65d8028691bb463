package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"
)

// =============================================================================
// Resilient Completer
// =============================================================================

// ResilienceConfig bounds retries and breaker behaviour for LLM calls.
type ResilienceConfig struct {
	Name            string
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	// breaker
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Name:                "openai",
		MaxRetries:          2,
		InitialInterval:     500 * time.Millisecond,
		MaxElapsedTime:      20 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// ResilientCompleter retries transient LLM failures with exponential
// backoff behind a circuit breaker. Client errors (4xx other than 429) are
// not retried and do not trip the breaker.
type ResilientCompleter struct {
	next out.LLMCompleter
	cb   *gobreaker.CircuitBreaker
	cfg  ResilienceConfig
	log  *logger.Logger
}

func NewResilientCompleter(next out.LLMCompleter, cfg ResilienceConfig) *ResilientCompleter {
	log := logger.WithFields(map[string]any{"component": "llm", "breaker": cfg.Name})

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &ResilientCompleter{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
		cfg:  cfg,
		log:  log,
	}
}

func (r *ResilientCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var reply string
	attempt := 0

	op := func() error {
		attempt++
		res, err := r.cb.Execute(func() (interface{}, error) {
			return r.next.Complete(ctx, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !isTransient(err) {
				return backoff.Permanent(err)
			}
			r.log.WithContext(ctx).WithError(err).Debug("llm attempt %d failed", attempt)
			return err
		}
		reply, _ = res.(string)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx))
	if err != nil {
		return "", err
	}
	return reply, nil
}

// State returns the breaker state name.
func (r *ResilientCompleter) State() string {
	return r.cb.State().String()
}

// isTransient reports whether an LLM error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch code := StatusCode(err); {
	case code == 0:
		return true // network error or timeout
	case code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
