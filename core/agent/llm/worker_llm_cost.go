package llm

import (
	"sync"
	"time"
)

// =============================================================================
// Cost Tracking
// =============================================================================

// Pricing per 1M tokens
var modelPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"gpt-4o-mini":            {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":                 {InputPer1M: 5.00, OutputPer1M: 15.00},
	"text-embedding-ada-002": {InputPer1M: 0.10},
}

// CalculateCost returns the estimated USD cost. Unknown models cost 0.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1_000_000*pricing.InputPer1M +
		float64(completionTokens)/1_000_000*pricing.OutputPer1M
}

// CostTracker accumulates token usage across calls.
type CostTracker struct {
	mu           sync.RWMutex
	totalCost    float64
	totalTokens  int64
	requestCount int64
	dailyCost    map[string]float64
	modelUsage   map[string]int64
	now          func() time.Time
}

func NewCostTracker() *CostTracker {
	return &CostTracker{
		dailyCost:  make(map[string]float64),
		modelUsage: make(map[string]int64),
		now:        time.Now,
	}
}

func (t *CostTracker) Track(model string, inputTokens, outputTokens int) float64 {
	cost := CalculateCost(model, inputTokens, outputTokens)
	tokens := int64(inputTokens + outputTokens)

	t.mu.Lock()
	t.totalCost += cost
	t.totalTokens += tokens
	t.requestCount++
	t.dailyCost[t.now().Format("2006-01-02")] += cost
	t.modelUsage[model] += tokens
	t.mu.Unlock()

	return cost
}

type CostStats struct {
	TotalCost         float64          `json:"total_cost"`
	TotalTokens       int64            `json:"total_tokens"`
	RequestCount      int64            `json:"request_count"`
	AvgCostPerRequest float64          `json:"avg_cost_per_request"`
	ModelUsage        map[string]int64 `json:"model_usage"`
}

func (t *CostTracker) Stats() CostStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	usage := make(map[string]int64, len(t.modelUsage))
	for k, v := range t.modelUsage {
		usage[k] = v
	}
	stats := CostStats{
		TotalCost:    t.totalCost,
		TotalTokens:  t.totalTokens,
		RequestCount: t.requestCount,
		ModelUsage:   usage,
	}
	if t.requestCount > 0 {
		stats.AvgCostPerRequest = t.totalCost / float64(t.requestCount)
	}
	return stats
}

// DailyCost returns the cost accumulated on the given day (YYYY-MM-DD).
func (t *CostTracker) DailyCost(day string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dailyCost[day]
}
