package domain

import "testing"

func TestCustomerEventFromMap(t *testing.T) {
	ev := CustomerEventFromMap(map[string]any{
		" Email ":      "a@b.com",
		"First_Name":   "Ana",
		"viewed_page":  "Payment_Plans",
		"form_started": "yes",
		"scheduled":    nil,
		"attended":     1,
		"ignored":      "x",
	})

	if ev.Email != "a@b.com" {
		t.Errorf("expected email a@b.com, got %q", ev.Email)
	}
	if ev.FirstName != "Ana" {
		t.Errorf("expected first name Ana, got %q", ev.FirstName)
	}
	if ev.ViewedPage != "Payment_Plans" {
		t.Errorf("expected raw viewed page, got %q", ev.ViewedPage)
	}
	if ev.FormStarted != "yes" || ev.Attended != 1 || ev.Scheduled != nil {
		t.Errorf("flags should be kept raw, got %+v", ev)
	}
}

func TestCustomerID(t *testing.T) {
	tests := []struct {
		name string
		ev   *CustomerEvent
		want string
	}{
		{"id wins", &CustomerEvent{ID: "c1", Email: "a@b.com"}, "c1"},
		{"email fallback", &CustomerEvent{Email: "a@b.com"}, "a@b.com"},
		{"anonymous", &CustomerEvent{}, AnonymousCustomerID},
		{"nil", nil, AnonymousCustomerID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.CustomerID(); got != tt.want {
				t.Errorf("CustomerID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		ev   CustomerEvent
		want string
	}{
		{CustomerEvent{FirstName: "Ana", Name: "Ana Lopez"}, "Ana"},
		{CustomerEvent{Name: "Ana Lopez"}, "Ana Lopez"},
		{CustomerEvent{FirstName: "  "}, "there"},
	}
	for _, tt := range tests {
		if got := tt.ev.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}

func TestSegmentIsBlank(t *testing.T) {
	if !(&SegmentResult{Reasons: []string{" "}}).IsBlank() {
		t.Error("whitespace-only segment should be blank")
	}
	if (&SegmentResult{UseCase: "loans"}).IsBlank() {
		t.Error("segment with use case should not be blank")
	}
}

func TestStageKeys(t *testing.T) {
	if got := StageKey("c1", StageSafety); got != "pipeline:c1:safety" {
		t.Errorf("unexpected stage key %q", got)
	}
	if got := StageErrorKey("c1", StageVariants); got != "pipeline:c1:variants:error" {
		t.Errorf("unexpected error key %q", got)
	}
	if _, ok := ParseStage("analysis"); !ok {
		t.Error("analysis should be a known stage")
	}
	if _, ok := ParseStage("bogus"); ok {
		t.Error("bogus should not parse")
	}
}

func TestVariantCloneIsolatesMeta(t *testing.T) {
	v := Variant{ID: "A", Meta: map[string]any{MetaType: "short"}}
	c := v.Clone()
	c.SetMeta(MetaType, "long")

	if v.MetaString(MetaType) != "short" {
		t.Error("clone should not share meta with original")
	}
}
