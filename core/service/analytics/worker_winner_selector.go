// Package analytics scores safe variants with a deterministic mock CTR and
// picks a winner.
package analytics

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"time"

	"campaign_worker/core/domain"
)

var baseCTR = map[string]float64{
	"short": 0.08,
	"long":  0.06,
}

const defaultBaseCTR = 0.05

var intentBonus = map[domain.IntentLevel]float64{
	domain.IntentVeryHigh: 0.04,
	domain.IntentHigh:     0.03,
	domain.IntentMedium:   0.02,
	domain.IntentLow:      0.01,
}

// maxJitter bounds the per-customer variation, [0, maxJitter).
const maxJitter = 0.02

// MockCTR is a pure function of the variant's type, intent level and the
// customer/variant pair.
func MockCTR(v domain.Variant, customerID string) float64 {
	base, ok := baseCTR[v.MetaString(domain.MetaType)]
	if !ok {
		base = defaultBaseCTR
	}
	bonus := intentBonus[domain.IntentLevel(v.MetaString(domain.MetaIntentLevel))]
	return base + bonus + jitter(customerID, v.ID)
}

func jitter(customerID, variantID string) float64 {
	sum := md5.Sum([]byte(customerID + ":" + variantID))
	n := binary.BigEndian.Uint32(sum[:4])
	return float64(n) / float64(1<<32) * maxJitter
}

// Selector picks exactly one winner whenever at least one safe variant
// exists.
type Selector struct {
	now func() time.Time
}

func NewSelector() *Selector {
	return &Selector{now: time.Now}
}

// Evaluate scores safe variants. blocked is reported in the metrics only.
// Ties go to the lexicographically lower variant id.
func (s *Selector) Evaluate(safe []domain.Variant, customer *domain.CustomerEvent, blocked int) domain.WinnerSelection {
	start := s.now()
	customerID := customer.CustomerID()

	sel := domain.WinnerSelection{
		Results: make([]domain.VariantScore, 0, len(safe)),
	}

	var best *domain.Variant
	bestScore := 0.0
	for i := range safe {
		v := &safe[i]
		score := MockCTR(*v, customerID)
		sel.Results = append(sel.Results, domain.VariantScore{VariantID: v.ID, CTR: score})

		if best == nil || outranks(score, v.ID, bestScore, best.ID) {
			best, bestScore = v, score
		}
	}

	if best != nil {
		sel.Winner = &domain.Winner{
			VariantID: best.ID,
			Score:     bestScore,
			Rationale: fmt.Sprintf("highest mock CTR %.4f of %d safe variants (type=%s, intent=%s)",
				bestScore, len(safe), orDash(best.MetaString(domain.MetaType)), orDash(best.MetaString(domain.MetaIntentLevel))),
		}
	}

	sel.Metrics = domain.AnalyticsMetrics{
		Evaluated: len(safe),
		Blocked:   blocked,
		LatencyMS: float64(s.now().Sub(start).Microseconds()) / 1000,
	}
	return sel
}

// outranks orders by score, then by lower id.
func outranks(score float64, id string, bestScore float64, bestID string) bool {
	if score != bestScore {
		return score > bestScore
	}
	return id < bestID
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
