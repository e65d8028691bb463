package domain

import "time"

// SplitEntry is one variant's share of traffic.
type SplitEntry struct {
	VariantID string  `json:"variant_id" yaml:"variant"`
	Fraction  float64 `json:"fraction" yaml:"fraction"`
}

// Split is an ordered split ratio. Order decides interval placement.
type Split []SplitEntry

// Map returns the split as variant -> fraction.
func (s Split) Map() map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, e := range s {
		m[e.VariantID] = e.Fraction
	}
	return m
}

// IDs returns variant ids in split order.
func (s Split) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, e := range s {
		ids = append(ids, e.VariantID)
	}
	return ids
}

// Has reports whether id is one of the split's variants.
func (s Split) Has(id string) bool {
	for _, e := range s {
		if e.VariantID == id {
			return true
		}
	}
	return false
}

// Threshold is the [Low, High) interval owned by a variant.
type Threshold struct {
	Low  float64 `json:"low" bson:"low"`
	High float64 `json:"high" bson:"high"`
}

// Assignment is a deterministic experiment bucket decision.
type Assignment struct {
	VariantID     string             `json:"variant_id" bson:"variant_id"`
	HashValue     float64            `json:"hash_value" bson:"hash_value"`
	Threshold     Threshold          `json:"threshold" bson:"threshold"`
	ExperimentID  string             `json:"experiment_id" bson:"experiment_id"`
	UserID        string             `json:"user_id" bson:"user_id"`
	SplitRatio    map[string]float64 `json:"split_ratio" bson:"split_ratio"`
	Deterministic bool               `json:"deterministic" bson:"deterministic"`
}

// AssignmentEvent is published after a customer is bucketed.
type AssignmentEvent struct {
	Assignment Assignment `json:"assignment"`
	RunID      string     `json:"run_id,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
}
