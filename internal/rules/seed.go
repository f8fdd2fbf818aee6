package rules

import (
	"context"
	"errors"
	"fmt"

	"caresignal/internal/signals"
)

// Seed installs the reference rule set if the rules are not already present.
// Idempotent: an existing rule with the same name is left untouched.
func Seed(ctx context.Context, store Store) error {
	for _, rule := range ReferenceRules() {
		rule := rule
		err := store.Create(ctx, &rule)
		if err != nil && !errors.Is(err, ErrNameTaken) {
			return fmt.Errorf("seed rule %q: %w", rule.Name, err)
		}
	}
	return nil
}

// ReferenceRules returns the built-in correlation rule set.
func ReferenceRules() []CorrelationRule {
	return []CorrelationRule{
		{
			Name: "medication_adherence_vitals_pattern",
			Thresholds: map[signals.Domain]int{
				signals.DomainMedication: 2,
				signals.DomainVital:      1,
			},
			Severity:            "HIGH",
			Confidence:          0.85,
			RequiresHumanAction: true,
			Active:              true,
		},
		{
			Name: "multi_domain_instability",
			Thresholds: map[signals.Domain]int{
				signals.DomainMedication:  1,
				signals.DomainVital:       1,
				signals.DomainObservation: 1,
			},
			Severity:            "CRITICAL",
			Confidence:          0.9,
			RequiresHumanAction: true,
			Active:              true,
		},
		{
			Name: "vitals_observation_concern",
			Thresholds: map[signals.Domain]int{
				signals.DomainVital:       2,
				signals.DomainObservation: 1,
			},
			Severity:            "MEDIUM",
			Confidence:          0.75,
			RequiresHumanAction: false,
			Active:              true,
		},
	}
}
