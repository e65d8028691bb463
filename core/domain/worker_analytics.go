package domain

// VariantScore is the mock CTR computed for one safe variant.
type VariantScore struct {
	VariantID string  `json:"variant_id" bson:"variant_id"`
	CTR       float64 `json:"ctr" bson:"ctr"`
}

// Winner is the selected variant.
type Winner struct {
	VariantID string  `json:"variant_id" bson:"variant_id"`
	Score     float64 `json:"score" bson:"score"`
	Rationale string  `json:"rationale" bson:"rationale"`
}

// AnalyticsMetrics are synthetic counters attached to a selection.
type AnalyticsMetrics struct {
	Evaluated int     `json:"evaluated" bson:"evaluated"`
	Blocked   int     `json:"blocked" bson:"blocked"`
	LatencyMS float64 `json:"latency_ms" bson:"latency_ms"`
}

// WinnerSelection is the analytics output. Winner is nil when no safe
// variant was available.
type WinnerSelection struct {
	Winner  *Winner          `json:"winner" bson:"winner"`
	Results []VariantScore   `json:"results" bson:"results"`
	Metrics AnalyticsMetrics `json:"metrics" bson:"metrics"`
}

// HasWinner reports whether a winner was selected.
func (w *WinnerSelection) HasWinner() bool {
	return w != nil && w.Winner != nil
}
