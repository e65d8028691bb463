package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"campaign_worker/core/domain"
)

type fakeLLM struct {
	reply      string
	err        error
	gotSystem  string
	gotPrompt  string
	callsCount int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.callsCount++
	f.gotSystem, f.gotPrompt = system, user
	return f.reply, f.err
}

func paymentPlansSegment() *domain.SegmentResult {
	return &domain.SegmentResult{
		Segment:      "payment_plans:StartedFormOrFlow",
		UseCase:      "payment_plans",
		UseCaseLabel: "Payment Plans",
		FunnelStage:  domain.StageStartedFormOrFlow,
		IntentLevel:  domain.IntentMedium,
		Reasons:      []string{"interested in: Payment Plans"},
	}
}

func TestTemplateVariantsNoCitations(t *testing.T) {
	got := TemplateVariants(&domain.CustomerEvent{}, paymentPlansSegment(), nil)

	if len(got) != 2 || got[0].ID != "A" || got[1].ID != "B" {
		t.Fatalf("expected variants A and B, got %v", domain.VariantIDs(got))
	}
	if got[0].Subject != "Hi there, quick note about payment_plans:StartedFormOrFlow" {
		t.Errorf("unexpected A subject %q", got[0].Subject)
	}
	wantBody := "Hi there,\n\nWe wanted to follow up about your Payment Plans journey (StartedFormOrFlow).\n\n\n- Our team"
	if got[0].Body != wantBody {
		t.Errorf("unexpected A body %q", got[0].Body)
	}
	if got[0].MetaString(domain.MetaType) != "short" || got[0].MetaString(domain.MetaTone) != "friendly" {
		t.Errorf("unexpected A meta %v", got[0].Meta)
	}
	if got[1].MetaString(domain.MetaType) != "long" || got[1].MetaString(domain.MetaTone) != "informative" {
		t.Errorf("unexpected B meta %v", got[1].Meta)
	}
	for _, v := range got {
		if v.MetaString(domain.MetaGenerator) != domain.GeneratorTemplate {
			t.Errorf("variant %s missing template tag", v.ID)
		}
		if v.MetaString(domain.MetaIntentLevel) != "medium" {
			t.Errorf("variant %s missing intent level", v.ID)
		}
	}
	if strings.Contains(got[1].Body, "read more here") {
		t.Error("B should not link without citations")
	}
}

func TestTemplateVariantsUseRedactedSnippet(t *testing.T) {
	citations := []domain.Citation{{
		ID:           "kb-1",
		Text:         "Call 555-123-4567 to talk to us.",
		RedactedText: "Call [REDACTED_PHONE] to talk to us.",
		URL:          "https://example.com/plans",
	}}
	customer := &domain.CustomerEvent{FirstName: "Ana", Email: "ana@example.com"}

	got := TemplateVariants(customer, paymentPlansSegment(), citations)

	for _, v := range got {
		if strings.Contains(v.Body, "555-123-4567") {
			t.Errorf("variant %s leaked raw citation text", v.ID)
		}
		if !strings.Contains(v.Body, "[REDACTED_PHONE]") {
			t.Errorf("variant %s should embed the redacted snippet", v.ID)
		}
		if !strings.Contains(v.Body, "Ana") {
			t.Errorf("variant %s should greet by first name", v.ID)
		}
	}
	if !strings.Contains(got[1].Body, "You can read more here: https://example.com/plans") {
		t.Errorf("B should link the first citation, got %q", got[1].Body)
	}
}

func TestContextPhrase(t *testing.T) {
	tests := []struct {
		seg  *domain.SegmentResult
		want string
	}{
		{&domain.SegmentResult{UseCaseLabel: "Loans", FunnelStage: domain.StageBrowsingOnly}, "your Loans journey (BrowsingOnly)"},
		{&domain.SegmentResult{UseCase: "loans"}, "your loans options"},
		{&domain.SegmentResult{IntentLevel: domain.IntentHigh}, "your options given your high interest"},
		{&domain.SegmentResult{}, "your options"},
		{nil, "your options"},
	}
	for _, tt := range tests {
		if got := ContextPhrase(tt.seg); got != tt.want {
			t.Errorf("ContextPhrase(%+v) = %q, want %q", tt.seg, got, tt.want)
		}
	}
}

func TestGenerateWithoutLLM(t *testing.T) {
	var reasons []string
	g := NewGenerator(nil).OnFallback(func(r string) { reasons = append(reasons, r) })

	got := g.Generate(context.Background(), nil, nil, nil)
	if len(got) < MinVariants {
		t.Fatalf("expected at least %d variants, got %d", MinVariants, len(got))
	}
	if len(reasons) != 1 || reasons[0] != FallbackNoLLM {
		t.Errorf("unexpected fallback reasons %v", reasons)
	}
}

func TestGenerateWithLLM(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n" + `[
		{"id":"A","subject":"Hi Ana","body":"Short note","meta":{"type":"short","tone":"warm"}},
		{"id":"B","subject":"More for Ana","body":"Longer note","meta":{"type":"long","tone":"calm","intent_level":"high","generator":"gpt"}}
	]` + "\n```"}
	customer := &domain.CustomerEvent{ID: "c-9", FirstName: "Ana", Email: "ana@example.com", Name: "Ana Lopez"}
	citations := []domain.Citation{{ID: "kb-1", Text: "raw 555-123-4567", RedactedText: "raw [REDACTED_PHONE]"}}

	got := NewGenerator(llm).Generate(context.Background(), customer, paymentPlansSegment(), citations)

	if len(got) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(got))
	}
	if got[0].MetaString(domain.MetaIntentLevel) != "medium" {
		t.Errorf("intent level should be backfilled, got %v", got[0].Meta)
	}
	if got[0].MetaString(domain.MetaGenerator) != domain.GeneratorLLM {
		t.Errorf("generator should be tagged llm, got %v", got[0].Meta)
	}
	if got[1].MetaString(domain.MetaIntentLevel) != "high" || got[1].MetaString(domain.MetaGenerator) != "gpt" {
		t.Errorf("existing meta should be kept, got %v", got[1].Meta)
	}

	if llm.gotSystem != SystemPrompt {
		t.Error("system prompt not sent")
	}
	for _, leaked := range []string{"ana@example.com", "Ana Lopez", "555-123-4567"} {
		if strings.Contains(llm.gotPrompt, leaked) {
			t.Errorf("prompt leaked %q", leaked)
		}
	}
	if !strings.Contains(llm.gotPrompt, `"first_name": "Ana"`) || !strings.Contains(llm.gotPrompt, "[REDACTED_PHONE]") {
		t.Errorf("prompt missing minimized payload:\n%s", llm.gotPrompt)
	}
}

func TestGenerateFallsBackOnBadReplies(t *testing.T) {
	tests := []struct {
		name   string
		llm    *fakeLLM
		reason string
	}{
		{"call error", &fakeLLM{err: errors.New("timeout")}, FallbackLLMError},
		{"prose", &fakeLLM{reply: "Here are your variants!"}, FallbackRejected},
		{"object not array", &fakeLLM{reply: `{"id":"A"}`}, FallbackRejected},
		{"empty array", &fakeLLM{reply: `[]`}, FallbackRejected},
		{"missing key", &fakeLLM{reply: `[{"id":"A","subject":"s","body":"b"},{"id":"B","subject":"s","body":"b","meta":{}}]`}, FallbackRejected},
		{"non-object item", &fakeLLM{reply: `[{"id":"A","subject":"s","body":"b","meta":{}}, "B"]`}, FallbackRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reason string
			g := NewGenerator(tt.llm).OnFallback(func(r string) { reason = r })

			got := g.Generate(context.Background(), &domain.CustomerEvent{}, paymentPlansSegment(), nil)

			if len(got) != 2 || got[0].MetaString(domain.MetaGenerator) != domain.GeneratorTemplate {
				t.Errorf("expected template fallback, got %+v", got)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestParseVariants(t *testing.T) {
	valid := `[{"id":"A","subject":"s","body":"b","meta":null},{"id":"B","subject":"s2","body":"b2","meta":{"type":"long"}}]`
	got, err := ParseVariants(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Meta == nil {
		t.Error("null meta should become an empty map")
	}

	invalid := []string{
		`[{"id":"A","subject":"s","body":"b","meta":{}}]`,
		`[{"id":"A","subject":"s","body":"b","meta":{}},{"id":"A","subject":"s","body":"b","meta":{}}]`,
		`[{"id":"","subject":"s","body":"b","meta":{}},{"id":"B","subject":"s","body":"b","meta":{}}]`,
		`[{"id":"A","subject":1,"body":"b","meta":{}},{"id":"B","subject":"s","body":"b","meta":{}}]`,
		`[{"id":"A","subject":"s","body":"b","meta":"x"},{"id":"B","subject":"s","body":"b","meta":{}}]`,
	}
	for _, raw := range invalid {
		if _, err := ParseVariants(raw); err == nil {
			t.Errorf("expected rejection for %s", raw)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"```json\n[1]\n```": "[1]",
		"```\n[1]\n```":     "[1]",
		"  [1]  ":           "[1]",
		"```json [1]```":    "[1]",
	}
	for in, want := range tests {
		if got := StripCodeFence(in); got != want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
