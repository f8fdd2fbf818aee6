package audit

import "time"

// Action names for the correlation engine's audit trail.
const (
	ActionCompoundEventCreated = "compound_event_created"
	ActionEventEmitFailed      = "compound_event_emit_failed"
)

// Event is emitted from the engine to capture key actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	SubjectID string
	Action    string
	RuleName  string
	EventID   string
	Severity  string
	Detail    string
	RequestID string
}
