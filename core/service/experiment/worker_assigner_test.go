package experiment

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/apperr"
)

func TestAssignDeterministic(t *testing.T) {
	a, err := NewAssigner(DefaultSplit(), DefaultSeed, "exp-1")
	if err != nil {
		t.Fatalf("NewAssigner() error = %v", err)
	}

	for _, user := range []string{"u1", "u2", "someone@example.com", ""} {
		first := a.Assign(user)
		second := a.Assign(user)
		if first.VariantID != second.VariantID || first.HashValue != second.HashValue {
			t.Errorf("assignment for %q not stable: %+v vs %+v", user, first, second)
		}

		again, err := Assign(user, "exp-1", DefaultSplit(), DefaultSeed)
		if err != nil {
			t.Fatal(err)
		}
		if again.VariantID != first.VariantID || again.HashValue != first.HashValue {
			t.Errorf("fresh assigner disagrees for %q", user)
		}
		if !first.Deterministic {
			t.Error("assignment should be marked deterministic")
		}
	}
}

func TestAssignHashInRangeAndThresholdContainsHash(t *testing.T) {
	split := domain.Split{{VariantID: "A", Fraction: 0.2}, {VariantID: "B", Fraction: 0.3}, {VariantID: "C", Fraction: 0.5}}
	a, err := NewAssigner(split, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Seed() != DefaultSeed || a.ExperimentID() != DefaultExperimentID {
		t.Errorf("defaults not applied: %s %s", a.Seed(), a.ExperimentID())
	}

	for i := 0; i < 2000; i++ {
		got := a.Assign(fmt.Sprintf("user-%d", i))
		if got.HashValue < 0 || got.HashValue >= 1 {
			t.Fatalf("hash out of range: %v", got.HashValue)
		}
		if got.HashValue < got.Threshold.Low || got.HashValue >= got.Threshold.High {
			t.Fatalf("hash %v outside owning threshold %+v", got.HashValue, got.Threshold)
		}
		if err := Validate(&got); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	}
}

func TestAssignDistribution(t *testing.T) {
	a, err := NewAssigner(DefaultSplit(), DefaultSeed, "dist")
	if err != nil {
		t.Fatal(err)
	}

	const n = 10000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		counts[a.Assign(fmt.Sprintf("user-%05d", i)).VariantID]++
	}

	for _, id := range []string{"A", "B"} {
		share := float64(counts[id]) / n
		if math.Abs(share-0.5) > 0.03 {
			t.Errorf("variant %s share %.3f outside 0.5 +/- 0.03", id, share)
		}
	}
}

func TestAssignOrderMatters(t *testing.T) {
	ab, _ := NewAssigner(domain.Split{{VariantID: "A", Fraction: 0.5}, {VariantID: "B", Fraction: 0.5}}, "s", "e")
	ba, _ := NewAssigner(domain.Split{{VariantID: "B", Fraction: 0.5}, {VariantID: "A", Fraction: 0.5}}, "s", "e")

	differs := false
	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("u%d", i)
		if ab.Assign(user).VariantID != ba.Assign(user).VariantID {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("interval order should follow split order")
	}
}

func TestHashValueKnown(t *testing.T) {
	h := HashValue("echovoice", "exp", "user")
	a, _ := NewAssigner(DefaultSplit(), "echovoice", "exp")
	if got := a.Assign("user").HashValue; got != h {
		t.Errorf("HashValue mismatch %v vs %v", got, h)
	}
}

func TestHashFractionStaysBelowOne(t *testing.T) {
	tests := []struct {
		prefix string
		want   float64
	}{
		{"000000000000000", 0},
		{"800000000000000", 0.5},
		{"fffffffffffffff", math.Nextafter(1, 0)},
		{"ffffffffffffffe", math.Nextafter(1, 0)},
	}
	for _, tt := range tests {
		got := hashFraction(tt.prefix)
		if got != tt.want || got >= 1 {
			t.Errorf("hashFraction(%s) = %v, want %v", tt.prefix, got, tt.want)
		}
	}

	// The top prefix must land in the last bucket, not fall off the end.
	a, _ := NewAssigner(DefaultSplit(), "", "")
	last := a.bounds[len(a.bounds)-1]
	if top := hashFraction("fffffffffffffff"); top < last.Low || top >= last.High {
		t.Errorf("top hash %v outside last threshold %+v", top, last)
	}
}

func TestValidateSplit(t *testing.T) {
	tests := []struct {
		name  string
		split domain.Split
		ok    bool
	}{
		{"even", DefaultSplit(), true},
		{"three way", domain.Split{{VariantID: "A", Fraction: 0.25}, {VariantID: "B", Fraction: 0.25}, {VariantID: "C", Fraction: 0.5}}, true},
		{"within tolerance", domain.Split{{VariantID: "A", Fraction: 0.5 + 5e-7}, {VariantID: "B", Fraction: 0.5}}, true},
		{"sums to 0.9", domain.Split{{VariantID: "A", Fraction: 0.4}, {VariantID: "B", Fraction: 0.5}}, false},
		{"sums above 1", domain.Split{{VariantID: "A", Fraction: 0.6}, {VariantID: "B", Fraction: 0.5}}, false},
		{"empty", domain.Split{}, false},
		{"zero fraction", domain.Split{{VariantID: "A", Fraction: 1}, {VariantID: "B", Fraction: 0}}, false},
		{"negative", domain.Split{{VariantID: "A", Fraction: 1.5}, {VariantID: "B", Fraction: -0.5}}, false},
		{"duplicate", domain.Split{{VariantID: "A", Fraction: 0.5}, {VariantID: "A", Fraction: 0.5}}, false},
		{"blank id", domain.Split{{VariantID: " ", Fraction: 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSplit(tt.split)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateSplit() error = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !apperr.IsCode(err, apperr.CodeConfigError) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestNewAssignerRejectsBadSplit(t *testing.T) {
	if _, err := NewAssigner(domain.Split{{VariantID: "A", Fraction: 0.4}, {VariantID: "B", Fraction: 0.5}}, "", ""); err == nil {
		t.Fatal("expected construction to fail for split summing to 0.9")
	}
	if _, err := Assign("u", "e", domain.Split{{VariantID: "A", Fraction: 0.3}}, ""); err == nil {
		t.Fatal("expected one-shot assign to fail")
	}
}

func TestValidate(t *testing.T) {
	good := domain.Assignment{
		VariantID:    "A",
		HashValue:    0.3,
		ExperimentID: "e",
		UserID:       "u",
		SplitRatio:   map[string]float64{"A": 0.5, "B": 0.5},
	}
	if err := Validate(&good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []func(a *domain.Assignment){
		func(a *domain.Assignment) { a.VariantID = "" },
		func(a *domain.Assignment) { a.VariantID = "Z" },
		func(a *domain.Assignment) { a.HashValue = 1 },
		func(a *domain.Assignment) { a.HashValue = -0.1 },
		func(a *domain.Assignment) { a.UserID = "" },
		func(a *domain.Assignment) { a.SplitRatio = nil },
	}
	for i, mutate := range bad {
		a := good
		a.SplitRatio = map[string]float64{"A": 0.5, "B": 0.5}
		mutate(&a)
		if err := Validate(&a); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if err := Validate(nil); err == nil {
		t.Error("nil assignment should fail")
	}
}

func TestEqualSplit(t *testing.T) {
	split := EqualSplit([]string{"A", "B", "C"})
	if err := ValidateSplit(split); err != nil {
		t.Fatalf("equal split should be valid: %v", err)
	}
	if split.IDs()[2] != "C" {
		t.Errorf("order not kept: %v", split.IDs())
	}
}

func TestAssignConcurrent(t *testing.T) {
	a, _ := NewAssigner(DefaultSplit(), DefaultSeed, "conc")
	want := a.Assign("shared-user").VariantID

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := a.Assign("shared-user").VariantID; got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("concurrent assign returned %s, want %s", got, want)
	}
}
