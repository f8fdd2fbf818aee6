package signals

import "time"

// Domain identifies which observation stream a signal came from.
type Domain string

const (
	DomainMedication  Domain = "medication"
	DomainVital       Domain = "vital"
	DomainObservation Domain = "observation"
	DomainTask        Domain = "task"
)

// AllDomains returns every known domain in stable order.
func AllDomains() []Domain {
	return []Domain{DomainMedication, DomainVital, DomainObservation, DomainTask}
}

// SourceRef points back at the row a signal was normalized from.
type SourceRef struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// Signal is a single normalized observation from one domain. Signals are
// immutable once recorded; the correlation engine never mutates them.
type Signal struct {
	Domain    Domain
	Subtype   string
	SubjectID string
	Timestamp time.Time
	Abnormal  bool
	Payload   map[string]any
	Source    SourceRef
}

// Payload keys shared between source adapters, predicates, and snapshots.
const (
	KeyStatus          = "status"
	KeyMedicationName  = "medication_name"
	KeyMeasurementType = "measurement_type"
	KeyValue           = "value"
	KeyConcernLevel    = "concern_level"
	KeyDescription     = "description"
	KeyTaskTitle       = "task_title"
	KeyCompleted       = "completed"
	KeyNote            = "note"
)

// snapshotKeys lists, per domain, the defining payload fields worth carrying
// into a contribution snapshot. The full raw payload stays in the source row.
var snapshotKeys = map[Domain][]string{
	DomainMedication:  {KeyStatus, KeyMedicationName},
	DomainVital:       {KeyMeasurementType, KeyValue},
	DomainObservation: {KeyConcernLevel},
	DomainTask:        {KeyTaskTitle, KeyNote},
}

// Snapshot returns a compact view of the signal's defining fields for audit
// readability without duplicating the source of truth.
func (s Signal) Snapshot() map[string]any {
	snap := map[string]any{
		"domain":    string(s.Domain),
		"subtype":   s.Subtype,
		"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
	}
	for _, key := range snapshotKeys[s.Domain] {
		if v, ok := s.Payload[key]; ok {
			snap[key] = v
		}
	}
	return snap
}
