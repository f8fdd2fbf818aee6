package correlation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"caresignal/internal/rules"
	"caresignal/internal/signals"
)

// contributionCapPerDomain bounds provenance linkage per domain so a noisy
// stream cannot produce unbounded contribution rows. The cap-most-recent
// signals are linked; the full count still appears on the event.
const contributionCapPerDomain = 5

// BuildEvent constructs the compound event and its contribution links for one
// satisfied rule. Pure construction; persistence happens in the event store.
//
// Severity and confidence are copied verbatim from the rule definition. The
// engine deliberately does not scale them with signal volume.
func BuildEvent(subjectID string, rule rules.CorrelationRule, matched map[signals.Domain][]signals.Signal, window Window, now time.Time) (CompoundEvent, []SignalContribution) {
	required := rule.RequiredDomains()

	total := 0
	detailCounts := make(map[string]int, len(required))
	for _, domain := range required {
		n := len(matched[domain])
		total += n
		detailCounts[string(domain)] = n
	}

	event := CompoundEvent{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Severity:      rule.Severity,
		Confidence:    rule.Confidence,
		ReasoningText: reasoningText(rule, matched, window),
		ReasoningDetail: map[string]any{
			"rule":         rule.Name,
			"window_hours": window.Hours(),
			"counts":       detailCounts,
		},
		WindowStart:             window.Start,
		WindowEnd:               window.End,
		ContributingSignalCount: total,
		RequiresHumanAction:     rule.RequiresHumanAction,
		CreatedAt:               now,
	}

	var contributions []SignalContribution
	for _, domain := range required {
		for _, sig := range capMostRecent(matched[domain], contributionCapPerDomain) {
			contributions = append(contributions, SignalContribution{
				CompoundEventID: event.ID,
				Domain:          domain,
				Source:          sig.Source,
				SignalType:      sig.Subtype,
				SignalTimestamp: sig.Timestamp,
				Snapshot:        sig.Snapshot(),
			})
		}
	}

	return event, contributions
}

// capMostRecent returns up to limit signals ordered by timestamp descending.
// The input slice is not modified.
func capMostRecent(sigs []signals.Signal, limit int) []signals.Signal {
	sorted := append([]signals.Signal(nil), sigs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// reasoningText renders a human-readable sentence explaining why the rule
// fired, in required-domain order so repeated runs produce identical text.
func reasoningText(rule rules.CorrelationRule, matched map[signals.Domain][]signals.Signal, window Window) string {
	parts := make([]string, 0, len(rule.Thresholds))
	for _, domain := range rule.RequiredDomains() {
		parts = append(parts, fmt.Sprintf("%d abnormal %s signal(s)", len(matched[domain]), domain))
	}
	return fmt.Sprintf("%s co-occurred within the last %.0fh, matching rule %q.",
		strings.Join(parts, " and "), window.Hours(), rule.Name)
}
