package safety

import (
	"fmt"
	"testing"

	"campaign_worker/core/domain"
)

func TestFilterPartitions(t *testing.T) {
	g := NewGate(nil, true)

	variants := []domain.Variant{
		{ID: "A", Subject: "Quick note", Body: "We can help you explore options."},
		{ID: "B", Subject: "GUARANTEED APPROVAL inside", Body: "Apply now."},
		{ID: "C", Subject: "Hello", Body: "Reach Ana at ana@example.com"},
		{ID: "D", Subject: "Free for life", Body: "call 555-123-4567"},
	}

	res := g.Filter(variants)

	if len(res.Safe)+len(res.Blocked) != len(variants) {
		t.Fatalf("partition lost variants: %d safe + %d blocked", len(res.Safe), len(res.Blocked))
	}
	if len(res.Safe) != 1 || res.Safe[0].ID != "A" {
		t.Errorf("expected only A safe, got %v", domain.VariantIDs(res.Safe))
	}

	want := map[string]string{
		"B": "prohibited_term:guaranteed approval",
		"C": "pii:email",
		"D": "prohibited_term:free for life",
	}
	for _, b := range res.Blocked {
		if b.Reason == "" {
			t.Errorf("blocked %s without reason", b.Variant.ID)
		}
		if b.Reason != want[b.Variant.ID] {
			t.Errorf("variant %s reason = %q, want %q", b.Variant.ID, b.Reason, want[b.Variant.ID])
		}
	}
}

func TestFilterKeepsVariantsUnchanged(t *testing.T) {
	v := domain.Variant{ID: "A", Subject: "s", Body: "b", Meta: map[string]any{"type": "short"}}
	res := NewGate(nil, false).Filter([]domain.Variant{v})

	if len(res.Safe) != 1 || res.Safe[0].Subject != "s" || res.Safe[0].Meta["type"] != "short" {
		t.Errorf("safe variant changed: %+v", res.Safe)
	}
}

func TestFilterAllBlocked(t *testing.T) {
	g := NewGate([]string{"act now"}, false)
	res := g.Filter([]domain.Variant{
		{ID: "A", Body: "Act Now!"},
		{ID: "B", Subject: "please ACT NOW"},
	})

	if len(res.Safe) != 0 || len(res.Blocked) != 2 {
		t.Errorf("expected all blocked, got %d safe %d blocked", len(res.Safe), len(res.Blocked))
	}
	if res.Safe == nil {
		t.Error("safe list should be empty, not nil")
	}
}

func TestTermSpanningSubjectAndBody(t *testing.T) {
	g := NewGate([]string{"free for life"}, false)
	v := domain.Variant{ID: "A", Subject: "free for", Body: "life"}

	if reason := g.Check(v); reason != "" {
		t.Errorf("subject and body are joined by a newline, got %q", reason)
	}
}

func TestNewGateNormalizesTerms(t *testing.T) {
	g := NewGate([]string{"  Guaranteed Approval ", "guaranteed approval", ""}, false)
	if terms := g.Terms(); len(terms) != 1 || terms[0] != "guaranteed approval" {
		t.Errorf("unexpected terms %v", terms)
	}
	if len(NewGate([]string{}, false).Terms()) != 0 {
		t.Error("empty slice should disable term checks")
	}
}

func TestPIICheckOptional(t *testing.T) {
	v := domain.Variant{ID: "A", Body: "ssn 123-45-6789"}

	if reason := NewGate([]string{}, false).Check(v); reason != "" {
		t.Errorf("PII check disabled, got %q", reason)
	}
	if reason := NewGate([]string{}, true).Check(v); reason != "pii:ssn" {
		t.Errorf("expected pii:ssn, got %q", reason)
	}
}

func TestFilterCompletenessManyInputs(t *testing.T) {
	g := NewGate(nil, true)
	for n := 0; n < 20; n++ {
		variants := make([]domain.Variant, n)
		for i := range variants {
			body := "helpful details"
			if i%3 == 0 {
				body = "0% interest forever"
			}
			variants[i] = domain.Variant{ID: fmt.Sprintf("V%d", i), Body: body}
		}
		res := g.Filter(variants)
		if len(res.Safe)+len(res.Blocked) != n {
			t.Fatalf("n=%d: partition size mismatch", n)
		}
	}
}
