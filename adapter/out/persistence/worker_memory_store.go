// Package persistence implements the stage-state store over memory, Redis,
// Postgres and SQLite.
package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"campaign_worker/core/port/out"

	"github.com/goccy/go-json"
)

// MemoryStateStore keeps JSON-encoded values in a map. Used for local runs
// and tests; values round-trip through JSON like the remote stores.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string][]byte)}
}

func (s *MemoryStateStore) Set(_ context.Context, key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Get(_ context.Context, key string, dest any) (bool, error) {
	if dest == nil {
		return false, ErrNilDest
	}
	s.mu.RLock()
	b, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (s *MemoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Stages lists the stage outputs persisted for a customer, sorted.
func (s *MemoryStateStore) Stages(_ context.Context, customerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stages []string
	for key := range s.data {
		cid, stage := splitKey(key)
		if cid == customerID && isStageOutput(stage) {
			stages = append(stages, stage)
		}
	}
	sort.Strings(stages)
	return stages, nil
}

// Len returns the number of stored keys with the given prefix.
func (s *MemoryStateStore) Len(prefix string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

var _ out.StateStore = (*MemoryStateStore)(nil)
