package domain

import "strings"

// FunnelStage is the customer's engagement stage.
type FunnelStage string

const (
	StageCompletedScheduledStep FunnelStage = "CompletedScheduledStep"
	StageScheduledNextStep      FunnelStage = "ScheduledNextStep"
	StageStartedFormOrFlow      FunnelStage = "StartedFormOrFlow"
	StageBrowsingOnly           FunnelStage = "BrowsingOnly"
)

// IntentLevel is derived 1:1 from FunnelStage.
type IntentLevel string

const (
	IntentVeryHigh IntentLevel = "very_high"
	IntentHigh     IntentLevel = "high"
	IntentMedium   IntentLevel = "medium"
	IntentLow      IntentLevel = "low"
)

// UnknownUseCase is used when the event carries no viewed page.
const UnknownUseCase = "unknown"

// SegmentResult is the segmenter output.
type SegmentResult struct {
	Segment      string      `json:"segment" bson:"segment"`
	UseCase      string      `json:"use_case" bson:"use_case"`
	UseCaseLabel string      `json:"use_case_label" bson:"use_case_label"`
	FunnelStage  FunnelStage `json:"funnel_stage" bson:"funnel_stage"`
	IntentLevel  IntentLevel `json:"intent_level" bson:"intent_level"`
	Reasons      []string    `json:"reasons" bson:"reasons"`
}

// IsBlank reports whether the result carries no usable field.
func (s *SegmentResult) IsBlank() bool {
	if s == nil {
		return true
	}
	if strings.TrimSpace(s.Segment) != "" ||
		strings.TrimSpace(s.UseCase) != "" ||
		strings.TrimSpace(s.UseCaseLabel) != "" ||
		strings.TrimSpace(string(s.FunnelStage)) != "" ||
		strings.TrimSpace(string(s.IntentLevel)) != "" {
		return false
	}
	for _, r := range s.Reasons {
		if strings.TrimSpace(r) != "" {
			return false
		}
	}
	return true
}
