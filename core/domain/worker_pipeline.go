package domain

import (
	"fmt"
	"time"
)

// Stage names. Each is also the response key of its output.
type Stage string

const (
	StageSegment    Stage = "segment"
	StageCitations  Stage = "citations"
	StageVariants   Stage = "variants"
	StageAssignment Stage = "assignment"
	StageSafety     Stage = "safety"
	StageReview     Stage = "hitl"
	StageAnalysis   Stage = "analysis"
	StageDelivery   Stage = "delivery"
)

// PipelineStages lists stages in execution order.
var PipelineStages = []Stage{
	StageSegment,
	StageCitations,
	StageVariants,
	StageAssignment,
	StageSafety,
	StageReview,
	StageAnalysis,
	StageDelivery,
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range PipelineStages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Outcome distinguishes the three terminal states of a run.
type Outcome string

const (
	OutcomeCompletedWithWinner Outcome = "completed_with_winner"
	OutcomeCompletedNoWinner   Outcome = "completed_no_winner"
	OutcomeFailedAtStage       Outcome = "failed_at_stage"
)

// StageError is the marker recorded when a stage raises.
type StageError struct {
	Stage    Stage     `json:"stage" bson:"stage"`
	Message  string    `json:"message" bson:"message"`
	FailedAt time.Time `json:"failed_at" bson:"failed_at"`
}

// PipelineState accumulates stage outputs for one customer run. It is
// owned by a single coordinator run and is also the API response body.
type PipelineState struct {
	RunID      string         `json:"run_id" bson:"run_id"`
	CustomerID string         `json:"customer_id" bson:"customer_id"`
	Customer   *CustomerEvent `json:"customer,omitempty" bson:"customer,omitempty"`

	Segment    *SegmentResult   `json:"segment" bson:"segment"`
	Citations  []Citation       `json:"citations" bson:"citations"`
	Variants   []Variant        `json:"variants" bson:"variants"`
	Assignment *Assignment      `json:"assignment,omitempty" bson:"assignment,omitempty"`
	Safety     *SafetyResult    `json:"safety" bson:"safety"`
	Review     *ReviewTicket    `json:"hitl" bson:"hitl"`
	Analysis   *WinnerSelection `json:"analysis" bson:"analysis"`
	Delivery   *DeliveryResult  `json:"delivery" bson:"delivery"`

	Outcome     Outcome      `json:"outcome" bson:"outcome"`
	FailedStage Stage        `json:"failed_stage,omitempty" bson:"failed_stage,omitempty"`
	Errors      []StageError `json:"errors,omitempty" bson:"errors,omitempty"`

	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`
}

// StageOutput returns the value persisted for a stage.
func (p *PipelineState) StageOutput(stage Stage) any {
	switch stage {
	case StageSegment:
		return p.Segment
	case StageCitations:
		return p.Citations
	case StageVariants:
		return p.Variants
	case StageAssignment:
		return p.Assignment
	case StageSafety:
		return p.Safety
	case StageReview:
		return p.Review
	case StageAnalysis:
		return p.Analysis
	case StageDelivery:
		return p.Delivery
	default:
		return nil
	}
}

// Summary is the compact record written at the end of a run.
type Summary struct {
	RunID       string    `json:"run_id"`
	CustomerID  string    `json:"customer_id"`
	Outcome     Outcome   `json:"outcome"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	WinnerID    string    `json:"winner_id,omitempty"`
	Delivery    string    `json:"delivery,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Summarize builds the run summary.
func (p *PipelineState) Summarize() Summary {
	s := Summary{
		RunID:       p.RunID,
		CustomerID:  p.CustomerID,
		Outcome:     p.Outcome,
		FailedStage: p.FailedStage,
		FinishedAt:  p.FinishedAt,
	}
	if p.Analysis.HasWinner() {
		s.WinnerID = p.Analysis.Winner.VariantID
	}
	if p.Delivery != nil {
		s.Delivery = string(p.Delivery.Status)
	}
	return s
}

// StageKey is the store key for one customer's stage output.
func StageKey(customerID string, stage Stage) string {
	return fmt.Sprintf("pipeline:%s:%s", customerID, stage)
}

// StageErrorKey is the store key for a stage's error marker.
func StageErrorKey(customerID string, stage Stage) string {
	return fmt.Sprintf("pipeline:%s:%s:error", customerID, stage)
}

// SummaryKey is the store key for the run summary.
func SummaryKey(customerID string) string {
	return fmt.Sprintf("pipeline:%s:summary", customerID)
}
