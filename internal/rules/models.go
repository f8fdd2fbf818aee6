package rules

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"caresignal/internal/signals"
)

// CorrelationRule is an AND-combination of per-domain minimum abnormal-signal
// counts. A rule is satisfied for a subject and window when every domain it
// references meets its threshold. Rules are independent of each other: a
// single run may satisfy zero, one, or several of them.
type CorrelationRule struct {
	ID                  uuid.UUID
	Name                string
	Thresholds          map[signals.Domain]int
	Severity            string
	Confidence          float64
	RequiresHumanAction bool
	Active              bool
}

// RequiredDomains returns the domains this rule references, sorted for
// deterministic iteration.
func (r CorrelationRule) RequiredDomains() []signals.Domain {
	domains := make([]signals.Domain, 0, len(r.Thresholds))
	for d := range r.Thresholds {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	return domains
}

// Validate reports whether the rule can be evaluated at all. A malformed rule
// is skipped during evaluation, never fatal to the run.
func (r CorrelationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if len(r.Thresholds) == 0 {
		return fmt.Errorf("rule %q: no domain thresholds", r.Name)
	}
	for domain, min := range r.Thresholds {
		if min < 1 {
			return fmt.Errorf("rule %q: threshold for %s must be >= 1, got %d", r.Name, domain, min)
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %q: confidence %v outside [0,1]", r.Name, r.Confidence)
	}
	return nil
}
