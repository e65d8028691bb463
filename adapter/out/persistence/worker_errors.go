package persistence

import (
	"errors"
	"strings"

	"campaign_worker/core/domain"
)

// Common persistence errors
var (
	ErrEmptyKey = errors.New("empty state key")
	ErrNilDest  = errors.New("nil decode destination")
)

const keyPrefix = "pipeline:"

// splitKey breaks "pipeline:{customer}:{stage}[:error]" into its customer
// id and stage column. The summary key yields stage "summary".
// Customer ids may themselves contain colons. Keys outside the pipeline
// namespace (review records) yield two empty strings.
func splitKey(key string) (customerID, stage string) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", ""
	}
	suffix := ""
	if strings.HasSuffix(rest, ":error") {
		rest = strings.TrimSuffix(rest, ":error")
		suffix = ":error"
	}
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return rest, suffix
	}
	return rest[:i], rest[i+1:] + suffix
}

// isStageOutput reports whether stage names a pipeline stage output.
func isStageOutput(stage string) bool {
	_, ok := domain.ParseStage(stage)
	return ok
}
