package correlation

import "caresignal/internal/rules"

// EvaluateRules returns the subset of rules whose threshold conditions are
// fully satisfied by the aggregated counts. Pure function: no hidden state,
// no tie-breaking, result order follows input order. Rules fire
// independently; satisfying one never suppresses another.
//
// A domain that was never aggregated reads as count 0.
func EvaluateRules(counts Counts, active []rules.CorrelationRule) []rules.CorrelationRule {
	var satisfied []rules.CorrelationRule
	for _, rule := range active {
		if ruleSatisfied(counts, rule) {
			satisfied = append(satisfied, rule)
		}
	}
	return satisfied
}

func ruleSatisfied(counts Counts, rule rules.CorrelationRule) bool {
	for domain, min := range rule.Thresholds {
		if counts[domain] < min {
			return false
		}
	}
	return true
}
