package model

import (
	"os"

	"github.com/castrolol/editalgraph/helper"
	"gopkg.in/yaml.v3"
)

// UnificationPolicy holds the tunable constants of the pipeline.
// The defaults were chosen empirically against real editais; treat them
// as policy, not domain law.
type UnificationPolicy struct {
	// MergeTolerance is the maximum relative difference between two
	// numeric values still treated as the same fact.
	MergeTolerance float64 `yaml:"merge_tolerance"`
	// DayMonthDivisor converts day counts to approximate month counts.
	DayMonthDivisor int `yaml:"day_month_divisor"`
	// DefaultConfidence is assumed for candidates missing a confidence.
	DefaultConfidence float64 `yaml:"default_confidence"`
}

// DefaultPolicy returns the policy used when no file overrides it.
func DefaultPolicy() UnificationPolicy {
	return UnificationPolicy{
		MergeTolerance:    0.001,
		DayMonthDivisor:   30,
		DefaultConfidence: 0.8,
	}
}

// LoadPolicy reads a YAML policy file, filling absent fields from the
// defaults.
func LoadPolicy(path string) (UnificationPolicy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, helper.NewError("read policy file", err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, helper.NewError("parse policy file", err)
	}

	if policy.MergeTolerance <= 0 {
		policy.MergeTolerance = DefaultPolicy().MergeTolerance
	}
	if policy.DayMonthDivisor <= 0 {
		policy.DayMonthDivisor = DefaultPolicy().DayMonthDivisor
	}
	if policy.DefaultConfidence <= 0 || policy.DefaultConfidence > 1 {
		policy.DefaultConfidence = DefaultPolicy().DefaultConfidence
	}

	return policy, nil
}
