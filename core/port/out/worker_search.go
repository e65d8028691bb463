package out

import (
	"context"

	"campaign_worker/core/domain"
)

// SimilaritySearch 유사도 검색 백엔드 인터페이스.
// Implementations return at most k documents, best first.
type SimilaritySearch interface {
	Search(ctx context.Context, query string, k int) ([]domain.Document, error)
}

// SimilaritySearchFunc adapts a plain function to SimilaritySearch.
type SimilaritySearchFunc func(ctx context.Context, query string, k int) ([]domain.Document, error)

func (f SimilaritySearchFunc) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	return f(ctx, query, k)
}
