package metrics

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// SQL Pool Gauges
// =============================================================================

// PoolStats is a JSON-friendly view of sql.DBStats.
type PoolStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	MaxOpen         int   `json:"max_open_connections"`
	WaitCount       int64 `json:"wait_count"`
	WaitMillis      int64 `json:"wait_duration_ms"`
}

// Saturated reports whether callers are queueing for connections.
func (s PoolStats) Saturated() bool {
	return s.MaxOpen > 0 && s.InUse >= s.MaxOpen
}

var (
	poolsMu sync.RWMutex
	pools   = map[string]*sql.DB{}
)

// RegisterPool tracks db under name and exports its stats as gauges.
// Registering the same name twice replaces the tracked pool.
func RegisterPool(name string, db *sql.DB) {
	poolsMu.Lock()
	_, existed := pools[name]
	pools[name] = db
	poolsMu.Unlock()
	if existed {
		return
	}

	gauge := func(metric, help string, value func(PoolStats) float64) {
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "db_pool",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"pool": name},
		}, func() float64 {
			stats, _ := GetPoolStats(name)
			return value(stats)
		}))
	}
	gauge("open_connections", "Open connections.", func(s PoolStats) float64 { return float64(s.OpenConnections) })
	gauge("in_use", "Connections in use.", func(s PoolStats) float64 { return float64(s.InUse) })
	gauge("idle", "Idle connections.", func(s PoolStats) float64 { return float64(s.Idle) })
	gauge("wait_count", "Total waits for a connection.", func(s PoolStats) float64 { return float64(s.WaitCount) })
}

// GetPoolStats returns the current stats for a registered pool.
func GetPoolStats(name string) (PoolStats, bool) {
	poolsMu.RLock()
	db, ok := pools[name]
	poolsMu.RUnlock()
	if !ok || db == nil {
		return PoolStats{}, false
	}

	s := db.Stats()
	return PoolStats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		MaxOpen:         s.MaxOpenConnections,
		WaitCount:       s.WaitCount,
		WaitMillis:      s.WaitDuration.Milliseconds(),
	}, true
}

// AllPoolStats returns stats for every registered pool.
func AllPoolStats() map[string]PoolStats {
	poolsMu.RLock()
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	poolsMu.RUnlock()

	out := make(map[string]PoolStats, len(names))
	for _, name := range names {
		if s, ok := GetPoolStats(name); ok {
			out[name] = s
		}
	}
	return out
}
