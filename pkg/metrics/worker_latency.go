package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency Window
// =============================================================================

// LatencyTracker keeps the most recent samples in a ring buffer and
// computes percentiles on demand.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	count   int64
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{samples: make([]time.Duration, windowSize)}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	lt.samples[lt.next] = d
	lt.next++
	if lt.next == len(lt.samples) {
		lt.next = 0
		lt.full = true
	}
	lt.count++
	lt.mu.Unlock()
}

// LatencyStats summarizes the current window. Count is the lifetime total.
type LatencyStats struct {
	Count   int64         `json:"count"`
	Samples int           `json:"samples"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Max     time.Duration `json:"max"`
}

func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	n := lt.next
	if lt.full {
		n = len(lt.samples)
	}
	window := make([]time.Duration, n)
	copy(window, lt.samples[:n])
	count := lt.count
	lt.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	var sum time.Duration
	for _, d := range window {
		sum += d
	}
	at := func(p float64) time.Duration { return window[int(float64(n-1)*p)] }

	return LatencyStats{
		Count:   count,
		Samples: n,
		Avg:     sum / time.Duration(n),
		P50:     at(0.50),
		P95:     at(0.95),
		P99:     at(0.99),
		Max:     window[n-1],
	}
}

// ToMap renders the stats in milliseconds.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":   s.Count,
		"samples": s.Samples,
		"avg_ms":  ms(s.Avg),
		"p50_ms":  ms(s.P50),
		"p95_ms":  ms(s.P95),
		"p99_ms":  ms(s.P99),
		"max_ms":  ms(s.Max),
	}
}

// =============================================================================
// Registry
// =============================================================================

type latencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

var registry = &latencyRegistry{trackers: make(map[string]*LatencyTracker), window: 1000}

func (r *latencyRegistry) tracker(name string) *LatencyTracker {
	r.mu.RLock()
	t, ok := r.trackers[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[name]; !ok {
		t = NewLatencyTracker(r.window)
		r.trackers[name] = t
	}
	return t
}

// RecordLatency records d under name in the process-wide registry.
func RecordLatency(name string, d time.Duration) {
	registry.tracker(name).Record(d)
}

// AllLatencyStats returns stats for every recorded name.
func AllLatencyStats() map[string]LatencyStats {
	registry.mu.RLock()
	names := make([]string, 0, len(registry.trackers))
	for name := range registry.trackers {
		names = append(names, name)
	}
	registry.mu.RUnlock()

	out := make(map[string]LatencyStats, len(names))
	for _, name := range names {
		out[name] = registry.tracker(name).Stats()
	}
	return out
}
