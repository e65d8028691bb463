// Package segment classifies customer events into funnel stages.
package segment

import (
	"fmt"
	"strings"

	"campaign_worker/core/domain"
)

// =============================================================================
// Stage Table
// =============================================================================

// stageRule maps one engagement flag to a funnel stage. Rules are
// evaluated in order and the first set flag wins.
type stageRule struct {
	flag   func(f flags) bool
	stage  domain.FunnelStage
	intent domain.IntentLevel
	tail   [2]string
}

type flags struct {
	formStarted bool
	scheduled   bool
	attended    bool
}

var stageRules = []stageRule{
	{
		flag:   func(f flags) bool { return f.attended },
		stage:  domain.StageCompletedScheduledStep,
		intent: domain.IntentVeryHigh,
		tail: [2]string{
			"completed a scheduled step (call/session/meeting)",
			"shows very strong commitment",
		},
	},
	{
		flag:   func(f flags) bool { return f.scheduled },
		stage:  domain.StageScheduledNextStep,
		intent: domain.IntentHigh,
		tail: [2]string{
			"scheduled a next step but has not completed it yet",
			"shows strong intent",
		},
	},
	{
		flag:   func(f flags) bool { return f.formStarted },
		stage:  domain.StageStartedFormOrFlow,
		intent: domain.IntentMedium,
		tail: [2]string{
			"started a form or flow but did not finish",
			"shows interest and may need a nudge",
		},
	},
}

var browsingRule = stageRule{
	stage:  domain.StageBrowsingOnly,
	intent: domain.IntentLow,
	tail: [2]string{
		"viewed a page but did not start the flow",
		"early-stage interest",
	},
}

// =============================================================================
// Segmenter
// =============================================================================

// Segmenter is stateless and safe for concurrent use.
type Segmenter struct{}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Segment never fails; every missing field has a default.
func (s *Segmenter) Segment(event domain.CustomerEvent) domain.SegmentResult {
	useCase := strings.ToLower(strings.TrimSpace(event.ViewedPage))
	if useCase == "" {
		useCase = domain.UnknownUseCase
	}
	label := PrettifySlug(useCase)

	f := flags{
		formStarted: ToBool(event.FormStarted),
		scheduled:   ToBool(event.Scheduled),
		attended:    ToBool(event.Attended),
	}

	rule := browsingRule
	for _, r := range stageRules {
		if r.flag(f) {
			rule = r
			break
		}
	}

	return domain.SegmentResult{
		Segment:      fmt.Sprintf("%s:%s", useCase, rule.stage),
		UseCase:      useCase,
		UseCaseLabel: label,
		FunnelStage:  rule.stage,
		IntentLevel:  rule.intent,
		Reasons: []string{
			"interested in: " + label,
			rule.tail[0],
			rule.tail[1],
		},
	}
}
