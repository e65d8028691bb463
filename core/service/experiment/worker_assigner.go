// Package experiment implements deterministic A/B bucketing.
package experiment

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/apperr"
)

const (
	DefaultSeed         = "echovoice"
	DefaultExperimentID = "default_experiment"

	// SplitTolerance is the allowed deviation of the split sum from 1.0.
	SplitTolerance = 1e-6

	hashHexDigits = 15
)

// hashSpace is 16^15.
var hashSpace = math.Pow(16, hashHexDigits)

// DefaultSplit is an even A/B split.
func DefaultSplit() domain.Split {
	return domain.Split{{VariantID: "A", Fraction: 0.5}, {VariantID: "B", Fraction: 0.5}}
}

// EqualSplit divides traffic evenly over ids in the given order.
func EqualSplit(ids []string) domain.Split {
	split := make(domain.Split, 0, len(ids))
	for _, id := range ids {
		split = append(split, domain.SplitEntry{VariantID: id, Fraction: 1 / float64(len(ids))})
	}
	return split
}

// ValidateSplit checks that the split is non-empty, has unique non-empty
// ids, fractions in (0, 1] and sums to 1 within SplitTolerance.
func ValidateSplit(split domain.Split) error {
	if len(split) == 0 {
		return apperr.ConfigError("split ratio is empty")
	}
	seen := make(map[string]struct{}, len(split))
	sum := 0.0
	for _, e := range split {
		id := strings.TrimSpace(e.VariantID)
		if id == "" {
			return apperr.ConfigError("split ratio has an empty variant id")
		}
		if _, dup := seen[id]; dup {
			return apperr.ConfigError(fmt.Sprintf("split ratio lists variant %q twice", id))
		}
		seen[id] = struct{}{}
		if e.Fraction <= 0 || e.Fraction > 1 {
			return apperr.ConfigError(fmt.Sprintf("fraction for %q must be in (0, 1], got %v", id, e.Fraction))
		}
		sum += e.Fraction
	}
	if math.Abs(sum-1.0) > SplitTolerance {
		return apperr.ConfigError(fmt.Sprintf("split ratio must sum to 1.0, got %v", sum)).
			WithDetail("sum", sum)
	}
	return nil
}

// HashValue maps (seed, experiment, user) to a stable float in [0, 1) using
// the first 15 hex digits of MD5("{seed}:{experiment_id}:{user_id}").
func HashValue(seed, experimentID, userID string) float64 {
	sum := md5.Sum([]byte(seed + ":" + experimentID + ":" + userID))
	return hashFraction(hex.EncodeToString(sum[:])[:hashHexDigits])
}

// hashFraction scales a hex prefix into [0, 1). Prefixes near 16^15 round
// up to 1.0 in float64, so the top is clamped.
func hashFraction(prefix string) float64 {
	n, _ := strconv.ParseUint(prefix, 16, 64)
	v := float64(n) / hashSpace
	if v >= 1 {
		v = math.Nextafter(1, 0)
	}
	return v
}

// =============================================================================
// Assigner
// =============================================================================

// Assigner buckets users into one experiment. It holds no mutable state and
// is safe for concurrent use.
type Assigner struct {
	split        domain.Split
	ratio        map[string]float64
	bounds       []domain.Threshold
	seed         string
	experimentID string
}

// NewAssigner validates the split up front. An invalid split is a
// configuration error.
func NewAssigner(split domain.Split, seed, experimentID string) (*Assigner, error) {
	if err := ValidateSplit(split); err != nil {
		return nil, err
	}
	if seed == "" {
		seed = DefaultSeed
	}
	if experimentID == "" {
		experimentID = DefaultExperimentID
	}

	bounds := make([]domain.Threshold, len(split))
	low := 0.0
	for i, e := range split {
		bounds[i] = domain.Threshold{Low: low, High: low + e.Fraction}
		low += e.Fraction
	}

	own := make(domain.Split, len(split))
	copy(own, split)

	return &Assigner{
		split:        own,
		ratio:        own.Map(),
		bounds:       bounds,
		seed:         seed,
		experimentID: experimentID,
	}, nil
}

func (a *Assigner) Split() domain.Split {
	out := make(domain.Split, len(a.split))
	copy(out, a.split)
	return out
}

func (a *Assigner) Seed() string         { return a.seed }
func (a *Assigner) ExperimentID() string { return a.experimentID }

// Assign returns the user's bucket. Identical inputs always yield the
// identical assignment.
func (a *Assigner) Assign(userID string) domain.Assignment {
	h := HashValue(a.seed, a.experimentID, userID)

	idx := len(a.bounds) - 1
	for i, b := range a.bounds {
		if h < b.High {
			idx = i
			break
		}
	}

	ratio := make(map[string]float64, len(a.ratio))
	for k, v := range a.ratio {
		ratio[k] = v
	}

	return domain.Assignment{
		VariantID:     a.split[idx].VariantID,
		HashValue:     h,
		Threshold:     a.bounds[idx],
		ExperimentID:  a.experimentID,
		UserID:        userID,
		SplitRatio:    ratio,
		Deterministic: true,
	}
}

// Assign is a one-shot helper over NewAssigner.
func Assign(userID, experimentID string, split domain.Split, seed string) (domain.Assignment, error) {
	a, err := NewAssigner(split, seed, experimentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return a.Assign(userID), nil
}

// Validate checks an assignment record for required fields, that the
// variant belongs to the split and that the hash is in [0, 1).
func Validate(a *domain.Assignment) error {
	if a == nil {
		return apperr.ValidationFailed("assignment is nil")
	}
	switch {
	case a.VariantID == "":
		return apperr.MissingField("variant_id")
	case a.ExperimentID == "":
		return apperr.MissingField("experiment_id")
	case a.UserID == "":
		return apperr.MissingField("user_id")
	case len(a.SplitRatio) == 0:
		return apperr.MissingField("split_ratio")
	}
	if _, ok := a.SplitRatio[a.VariantID]; !ok {
		return apperr.InvalidInput("variant_id", fmt.Sprintf("%q is not in split_ratio", a.VariantID))
	}
	if a.HashValue < 0 || a.HashValue >= 1 {
		return apperr.InvalidInput("hash_value", fmt.Sprintf("%v is outside [0, 1)", a.HashValue))
	}
	return nil
}
