package config

import (
	"errors"
	"io/fs"
	"os"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/apperr"

	"gopkg.in/yaml.v3"
)

// PolicyConfig holds the tunable experiment and content policy.
//
//	experiment:
//	  id: spring_promo
//	  seed: echovoice
//	  split:
//	    - {variant: A, fraction: 0.5}
//	    - {variant: B, fraction: 0.5}
//	safety:
//	  check_pii: true
//	  prohibited_terms: ["guaranteed approval"]
//	retrieval:
//	  top_k: 3
//	  overlap_weight: 0.9
//	  recency_weight: 0.1
type PolicyConfig struct {
	Experiment ExperimentPolicy `yaml:"experiment"`
	Safety     SafetyPolicy     `yaml:"safety"`
	Retrieval  RetrievalPolicy  `yaml:"retrieval"`
}

type ExperimentPolicy struct {
	ID    string       `yaml:"id"`
	Seed  string       `yaml:"seed"`
	Split domain.Split `yaml:"split"`
}

type SafetyPolicy struct {
	// ProhibitedTerms replaces the built-in list when non-nil. An explicit
	// empty list disables term matching.
	ProhibitedTerms []string `yaml:"prohibited_terms"`
	CheckPII        *bool    `yaml:"check_pii"`
}

type RetrievalPolicy struct {
	TopK          int     `yaml:"top_k"`
	OverlapWeight float64 `yaml:"overlap_weight"`
	RecencyWeight float64 `yaml:"recency_weight"`
}

// DefaultPolicy is used when no policy file exists.
func DefaultPolicy() *PolicyConfig {
	return &PolicyConfig{
		Experiment: ExperimentPolicy{
			ID:   "default_experiment",
			Seed: "echovoice",
			Split: domain.Split{
				{VariantID: "A", Fraction: 0.5},
				{VariantID: "B", Fraction: 0.5},
			},
		},
		Retrieval: RetrievalPolicy{TopK: 3, OverlapWeight: 0.9, RecencyWeight: 0.1},
	}
}

// PIIChecks reports whether the safety gate scans for leftover PII.
func (p *PolicyConfig) PIIChecks() bool {
	return p.Safety.CheckPII == nil || *p.Safety.CheckPII
}

// LoadPolicy reads path over the defaults. A missing file is not an error.
func LoadPolicy(path string) (*PolicyConfig, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return policy, nil
	}
	if err != nil {
		return nil, apperr.ConfigError("read policy file").WithError(err).WithDetail("path", path)
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, apperr.ConfigError("parse policy file").WithError(err).WithDetail("path", path)
	}

	// 빈 값은 기본값 유지
	defaults := DefaultPolicy()
	if policy.Experiment.ID == "" {
		policy.Experiment.ID = defaults.Experiment.ID
	}
	if policy.Experiment.Seed == "" {
		policy.Experiment.Seed = defaults.Experiment.Seed
	}
	if len(policy.Experiment.Split) == 0 {
		policy.Experiment.Split = defaults.Experiment.Split
	}
	if policy.Retrieval.TopK <= 0 {
		policy.Retrieval.TopK = defaults.Retrieval.TopK
	}
	return policy, nil
}
