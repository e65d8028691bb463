package generation

import (
	"fmt"
	"strings"

	"campaign_worker/core/domain"
)

// =============================================================================
// Template Fallback
// =============================================================================

// TemplateVariants deterministically builds variants A (short, friendly)
// and B (long, informative).
func TemplateVariants(customer *domain.CustomerEvent, seg *domain.SegmentResult, citations []domain.Citation) []domain.Variant {
	name := customer.DisplayName()
	label := segmentLabel(seg)
	phrase := ContextPhrase(seg)

	var snippet, url string
	if len(citations) > 0 {
		snippet = citationSnippet(citations[0])
		url = strings.TrimSpace(citations[0].URL)
	}

	var intent string
	if seg != nil {
		intent = string(seg.IntentLevel)
	}

	a := domain.Variant{
		ID:      "A",
		Subject: fmt.Sprintf("Hi %s, quick note about %s", name, label),
		Body: fmt.Sprintf("Hi %s,\n\nWe wanted to follow up about %s.\n%s\n\n- Our team",
			name, phrase, snippet),
		Meta: map[string]any{
			domain.MetaType:        "short",
			domain.MetaTone:        "friendly",
			domain.MetaContext:     phrase,
			domain.MetaIntentLevel: intent,
			domain.MetaGenerator:   domain.GeneratorTemplate,
		},
	}

	lines := []string{
		fmt.Sprintf("Hello %s,", name),
		"",
		fmt.Sprintf("Here are a few helpful details about %s.", phrase),
	}
	if snippet != "" {
		lines = append(lines, "", snippet)
	}
	if url != "" {
		lines = append(lines, "", "You can read more here: "+url)
	}
	lines = append(lines,
		"",
		"If you have questions, just reply to this message.",
		"",
		"- Our team",
	)

	b := domain.Variant{
		ID:      "B",
		Subject: fmt.Sprintf("%s, more details about %s", name, phrase),
		Body:    strings.Join(lines, "\n"),
		Meta: map[string]any{
			domain.MetaType:        "long",
			domain.MetaTone:        "informative",
			domain.MetaContext:     phrase,
			domain.MetaIntentLevel: intent,
			domain.MetaGenerator:   domain.GeneratorTemplate,
		},
	}

	return []domain.Variant{a, b}
}

// ContextPhrase is a short human-readable phrase for the segment, e.g.
// "your Payment Plans journey (CompletedScheduledStep)".
func ContextPhrase(seg *domain.SegmentResult) string {
	if seg == nil {
		return "your options"
	}
	label := strings.TrimSpace(seg.UseCaseLabel)
	if label == "" {
		label = strings.TrimSpace(seg.UseCase)
	}
	stage := strings.TrimSpace(string(seg.FunnelStage))
	intent := strings.TrimSpace(string(seg.IntentLevel))

	switch {
	case label != "" && stage != "":
		return fmt.Sprintf("your %s journey (%s)", label, stage)
	case label != "":
		return fmt.Sprintf("your %s options", label)
	case intent != "":
		return fmt.Sprintf("your options given your %s interest", intent)
	default:
		return "your options"
	}
}

func segmentLabel(seg *domain.SegmentResult) string {
	if seg != nil {
		if s := strings.TrimSpace(seg.Segment); s != "" {
			return s
		}
		if s := strings.TrimSpace(seg.UseCase); s != "" {
			return s
		}
	}
	return "your recent activity"
}
