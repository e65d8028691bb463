package rag

import (
	"context"

	"campaign_worker/core/port/out"
)

// maxEmbedChars bounds the text sent to the embedding model.
const maxEmbedChars = 8000

// Embedder wraps an embedding backend with a query cache.
type Embedder struct {
	backend out.Embedder
	cache   *EmbeddingCache
}

func NewEmbedder(backend out.Embedder, cache *EmbeddingCache) *Embedder {
	if cache == nil {
		cache = NewEmbeddingCache(0, 0)
	}
	return &Embedder{backend: backend, cache: cache}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = PrepareText(text, maxEmbedChars)
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}

	v, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, v)
	return v, nil
}

// PrepareText truncates text to maxLen runes.
func PrepareText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return text
}
