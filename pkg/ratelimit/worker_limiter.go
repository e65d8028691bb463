// Package ratelimit throttles inbound pipeline requests per caller.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the window.
// When it does not, retryAfter says how long until it would.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration)
}

// =============================================================================
// In-process fixed window
// =============================================================================

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window counter per key. Good for a single API
// replica; use RedisLimiter when several replicas share a budget.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(limit int, per time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  per,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.sweep(now)
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if w.count >= l.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// sweep drops expired windows; called with mu held.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// =============================================================================
// Redis sliding window
// =============================================================================

// slidingWindow은 ZSET에 요청 타임스탬프를 쌓고 window 밖은 잘라낸다.
// 허용이면 1, 거절이면 -(남은 ms) 를 돌려준다.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window_ms)
	return 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest > 0 then
	return -(tonumber(oldest[2]) + window_ms - now)
end
return -window_ms
`)

// RedisLimiter shares a sliding-window budget across replicas. Redis
// errors fail open.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration

	mu  sync.Mutex
	seq uint64
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, per time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: per}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.client == nil {
		return true, 0
	}

	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	now := time.Now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s:%s", l.prefix, key)},
		now, l.window.Milliseconds(), l.limit, fmt.Sprintf("%d-%d", now, seq),
	).Int64()
	if err != nil {
		return true, 0
	}
	if res == 1 {
		return true, 0
	}
	if res < 0 {
		return false, time.Duration(-res) * time.Millisecond
	}
	return false, l.window
}
