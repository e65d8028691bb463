package analytics

import (
	"testing"

	"campaign_worker/core/domain"
)

func variant(id, typ string, intent domain.IntentLevel) domain.Variant {
	return domain.Variant{ID: id, Meta: map[string]any{
		domain.MetaType:        typ,
		domain.MetaIntentLevel: string(intent),
	}}
}

func TestMockCTRRange(t *testing.T) {
	tests := []struct {
		v        domain.Variant
		min, max float64
	}{
		{variant("A", "short", domain.IntentVeryHigh), 0.12, 0.14},
		{variant("B", "long", domain.IntentLow), 0.07, 0.09},
		{variant("C", "medium", domain.IntentMedium), 0.07, 0.09},
		{domain.Variant{ID: "D"}, 0.05, 0.07},
	}
	for _, tt := range tests {
		got := MockCTR(tt.v, "cust-1")
		if got < tt.min || got >= tt.max {
			t.Errorf("MockCTR(%s) = %f, want [%f, %f)", tt.v.ID, got, tt.min, tt.max)
		}
		if again := MockCTR(tt.v, "cust-1"); again != got {
			t.Errorf("MockCTR(%s) not deterministic", tt.v.ID)
		}
	}
}

func TestEvaluatePicksOneWinner(t *testing.T) {
	safe := []domain.Variant{
		variant("A", "short", domain.IntentMedium),
		variant("B", "long", domain.IntentMedium),
	}
	got := NewSelector().Evaluate(safe, &domain.CustomerEvent{ID: "c1"}, 1)

	if !got.HasWinner() {
		t.Fatal("expected a winner")
	}
	// short base exceeds long base by more than the jitter range
	if got.Winner.VariantID != "A" {
		t.Errorf("expected A to win, got %s", got.Winner.VariantID)
	}
	if got.Winner.Rationale == "" {
		t.Error("winner should carry a rationale")
	}
	if len(got.Results) != 2 || got.Metrics.Evaluated != 2 || got.Metrics.Blocked != 1 {
		t.Errorf("unexpected results/metrics %+v", got)
	}

	again := NewSelector().Evaluate(safe, &domain.CustomerEvent{ID: "c1"}, 1)
	if again.Winner.VariantID != got.Winner.VariantID || again.Winner.Score != got.Winner.Score {
		t.Error("evaluation should be deterministic")
	}
}

func TestOutranks(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		id     string
		best   float64
		bestID string
		want   bool
	}{
		{"higher score", 0.09, "B", 0.08, "A", true},
		{"lower score", 0.07, "A", 0.08, "B", false},
		{"tie lower id", 0.08, "A", 0.08, "B", true},
		{"tie higher id", 0.08, "C", 0.08, "B", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outranks(tt.score, tt.id, tt.best, tt.bestID); got != tt.want {
				t.Errorf("outranks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateNoSafeVariants(t *testing.T) {
	got := NewSelector().Evaluate(nil, nil, 3)

	if got.HasWinner() {
		t.Fatalf("expected no winner, got %+v", got.Winner)
	}
	if got.Metrics.Evaluated != 0 || got.Metrics.Blocked != 3 {
		t.Errorf("unexpected metrics %+v", got.Metrics)
	}
	if got.Results == nil {
		t.Error("results should be an empty list")
	}
}
