// Package rag assembles retrieval context: query building, PII redaction,
// similarity search backends and citation assembly.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// =============================================================================
// Query Embedding Cache
// =============================================================================

// EmbeddingCache keeps query embeddings in memory. Segment queries repeat
// heavily across customers, so most lookups hit.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]cachedEmbedding
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

type cachedEmbedding struct {
	vector    []float32
	createdAt time.Time
}

func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		entries: make(map[string]cachedEmbedding),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached vector. Expired entries are dropped on read.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.vector, true
}

func (c *EmbeddingCache) Set(text string, vector []float32) {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = cachedEmbedding{vector: vector, createdAt: c.now()}
}

// Stats returns hit/miss counters.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *EmbeddingCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
