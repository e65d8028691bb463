package rag

import (
	"strings"

	"campaign_worker/core/domain"
)

// DefaultQuery is used when a segment carries nothing searchable.
const DefaultQuery = "help options and next steps"

const querySeparator = " | "

// BuildQuery turns a segment into a compact search query.
func BuildQuery(seg *domain.SegmentResult) string {
	if seg.IsBlank() {
		return DefaultQuery
	}

	label := strings.TrimSpace(seg.UseCaseLabel)
	if label == "" {
		label = strings.TrimSpace(seg.UseCase)
	}

	var intent string
	if v := strings.TrimSpace(string(seg.IntentLevel)); v != "" {
		intent = "intent: " + v
	}

	var firstReason string
	if len(seg.Reasons) > 0 {
		firstReason = strings.TrimSpace(seg.Reasons[0])
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{label, strings.TrimSpace(string(seg.FunnelStage)), intent, firstReason} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return DefaultQuery
	}
	return strings.Join(parts, querySeparator)
}
