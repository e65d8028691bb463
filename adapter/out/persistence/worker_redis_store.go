package persistence

import (
	"context"
	"sort"
	"time"

	"campaign_worker/core/port/out"
	"campaign_worker/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore stores stage outputs as JSON strings with a TTL.
type RedisStateStore struct {
	cache *cache.RedisCache
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{cache: cache.NewRedisCache(client, "", ttl)}
}

func (s *RedisStateStore) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.cache.SetJSON(ctx, key, value)
}

func (s *RedisStateStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	if dest == nil {
		return false, ErrNilDest
	}
	return s.cache.GetJSON(ctx, key, dest)
}

func (s *RedisStateStore) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// Stages lists persisted stage outputs for a customer.
func (s *RedisStateStore) Stages(ctx context.Context, customerID string) ([]string, error) {
	keys, err := s.cache.Keys(ctx, keyPrefix+customerID+":*")
	if err != nil {
		return nil, err
	}
	var stages []string
	for _, key := range keys {
		if cid, stage := splitKey(key); cid == customerID && isStageOutput(stage) {
			stages = append(stages, stage)
		}
	}
	sort.Strings(stages)
	return stages, nil
}

func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

var _ out.StateStore = (*RedisStateStore)(nil)
