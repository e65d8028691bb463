// Package safety filters generated variants with a rule-based scanner.
package safety

import (
	"strings"

	"campaign_worker/core/agent/rag"
	"campaign_worker/core/domain"
)

// DefaultProhibitedTerms are claims no outbound message may make.
func DefaultProhibitedTerms() []string {
	return []string{
		"100% guarantee you will save",
		"100% guaranteed to save money",
		"guaranteed lowest price",
		"we guarantee you will love it",
		"guaranteed approval",
		"approved for everyone",
		"no interest ever",
		"0% interest forever",
		"free for life",
	}
}

// Gate is a case-insensitive substring scanner. It has no semantic
// understanding: negations ("not guaranteed approval") still match.
// A Gate is immutable and safe for concurrent use.
type Gate struct {
	terms    []string
	checkPII bool
}

// NewGate builds a gate over terms. A nil slice selects the default list;
// an empty slice disables term checks.
func NewGate(terms []string, checkPII bool) *Gate {
	if terms == nil {
		terms = DefaultProhibitedTerms()
	}

	seen := make(map[string]struct{}, len(terms))
	norm := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		norm = append(norm, t)
	}
	return &Gate{terms: norm, checkPII: checkPII}
}

// Terms returns the normalized prohibited terms.
func (g *Gate) Terms() []string {
	out := make([]string, len(g.terms))
	copy(out, g.terms)
	return out
}

// Check returns the first reason a variant must be blocked, or "".
// Prohibited terms are checked before PII.
func (g *Gate) Check(v domain.Variant) string {
	text := v.Text()
	lower := strings.ToLower(text)
	for _, term := range g.terms {
		if strings.Contains(lower, term) {
			return domain.ReasonProhibitedTerm + ":" + term
		}
	}
	if g.checkPII {
		if kinds := rag.DetectPII(text); len(kinds) > 0 {
			return domain.ReasonPII + ":" + kinds[0]
		}
	}
	return ""
}

// Filter partitions variants into safe and blocked, preserving input
// order. Every variant lands in exactly one list.
func (g *Gate) Filter(variants []domain.Variant) domain.SafetyResult {
	res := domain.SafetyResult{
		Safe:    make([]domain.Variant, 0, len(variants)),
		Blocked: []domain.BlockedVariant{},
	}
	for _, v := range variants {
		if reason := g.Check(v); reason != "" {
			res.Blocked = append(res.Blocked, domain.BlockedVariant{Variant: v, Reason: reason})
			continue
		}
		res.Safe = append(res.Safe, v)
	}
	return res
}
