package correlation

import (
	"time"

	"github.com/google/uuid"

	"caresignal/internal/signals"
)

// Counts is the aggregated number of abnormal signals per domain for one
// subject and window.
type Counts map[signals.Domain]int

// Window is the lookback range a single evaluation run covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Hours returns the window length in whole-ish hours for reasoning output.
func (w Window) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// CompoundEvent is a higher-confidence event synthesized from co-occurring
// abnormal signals across domains, per one satisfied rule. Immutable after
// creation; this subsystem has no update or cancel path.
type CompoundEvent struct {
	ID                      uuid.UUID
	SubjectID               string
	RuleID                  uuid.UUID
	RuleName                string
	Severity                string
	Confidence              float64
	ReasoningText           string
	ReasoningDetail         map[string]any
	WindowStart             time.Time
	WindowEnd               time.Time
	ContributingSignalCount int
	RequiresHumanAction     bool
	CreatedAt               time.Time
}

// SignalContribution is an audit link from a compound event back to one
// concrete signal that justified it. Its existence proves which observations
// satisfied the rule.
type SignalContribution struct {
	CompoundEventID uuid.UUID
	Domain          signals.Domain
	Source          signals.SourceRef
	SignalType      string
	SignalTimestamp time.Time
	Snapshot        map[string]any
}

// EventSummary is the caller-facing digest of one created event.
type EventSummary struct {
	RuleName string
	EventID  uuid.UUID
	Severity string
}

// RuleError records a rule that could not be evaluated or whose event could
// not be persisted. One bad rule never aborts the rest of the run.
type RuleError struct {
	RuleName string
	Err      error
}

// EvaluationResult is what one Run returns to the invocation boundary.
type EvaluationResult struct {
	SubjectID     string
	SubjectFound  bool
	WindowStart   time.Time
	WindowEnd     time.Time
	EventsCreated int
	Events        []EventSummary
	SkippedRules  []RuleError
	FailedRules   []RuleError
}
