package rag

import (
	"context"

	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/pkg/logger"
	"campaign_worker/pkg/resilience"
)

// FallbackSearch queries a primary backend and falls back to a secondary
// one when the primary fails, is short-circuited, or returns nothing.
type FallbackSearch struct {
	primary   out.SimilaritySearch
	secondary out.SimilaritySearch
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger
}

func NewFallbackSearch(name string, primary, secondary out.SimilaritySearch) *FallbackSearch {
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(name))
	log := logger.WithFields(map[string]any{"component": "search", "backend": name})
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		log.Warn("search breaker %s: %s -> %s", name, from, to)
	})

	return &FallbackSearch{
		primary:   primary,
		secondary: secondary,
		breaker:   breaker,
		log:       log,
	}
}

func (s *FallbackSearch) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	var docs []domain.Document
	err := s.breaker.Execute(func() error {
		var err error
		docs, err = s.primary.Search(ctx, query, k)
		return err
	})
	if err == nil && len(docs) > 0 {
		return docs, nil
	}
	if s.secondary == nil {
		return docs, err
	}

	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("primary search failed, using fallback")
	} else {
		s.log.WithContext(ctx).Debug("primary search returned no documents, using fallback")
	}
	return s.secondary.Search(ctx, query, k)
}

// BreakerState exposes the primary breaker state for health reporting.
func (s *FallbackSearch) BreakerState() string {
	return s.breaker.State().String()
}
