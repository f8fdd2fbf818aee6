package signals

import "strings"

// Predicate reports whether a signal counts as abnormal for its domain.
// Predicates must be pure so evaluation stays deterministic.
type Predicate func(Signal) bool

// Medication statuses that indicate an adherence problem. Extend as the
// medication domain grows.
var abnormalMedicationStatuses = map[string]bool{
	"LATE":   true,
	"MISSED": true,
}

// Observation concern levels that indicate a reportable worry.
var abnormalConcernLevels = map[string]bool{
	"MODERATE": true,
	"URGENT":   true,
}

// Free-text keywords that flag a completed task note as a concern signal.
var taskConcernKeywords = []string{"concern", "issue", "problem"}

// vitalRange is the acceptable band for one measurement type. A measurement
// outside the band is abnormal.
type vitalRange struct {
	min, max float64
}

var vitalRanges = map[string]vitalRange{
	"blood_pressure_systolic": {min: 0, max: 140},
	"heart_rate":              {min: 60, max: 100},
}

// DefaultPredicates returns the per-domain abnormality predicates. New
// observation streams register here rather than adding branches to the
// aggregation loop.
func DefaultPredicates() map[Domain]Predicate {
	return map[Domain]Predicate{
		DomainMedication:  medicationAbnormal,
		DomainVital:       vitalAbnormal,
		DomainObservation: observationAbnormal,
		DomainTask:        taskAbnormal,
	}
}

func medicationAbnormal(s Signal) bool {
	status, _ := s.Payload[KeyStatus].(string)
	return abnormalMedicationStatuses[strings.ToUpper(status)]
}

func vitalAbnormal(s Signal) bool {
	metricType, _ := s.Payload[KeyMeasurementType].(string)
	r, known := vitalRanges[metricType]
	if !known {
		return false
	}
	value, ok := numericPayload(s.Payload[KeyValue])
	if !ok {
		return false
	}
	return value < r.min || value > r.max
}

func observationAbnormal(s Signal) bool {
	level, _ := s.Payload[KeyConcernLevel].(string)
	return abnormalConcernLevels[strings.ToUpper(level)]
}

func taskAbnormal(s Signal) bool {
	completed, _ := s.Payload[KeyCompleted].(bool)
	if !completed {
		return false
	}
	note, _ := s.Payload[KeyNote].(string)
	note = strings.ToLower(note)
	for _, kw := range taskConcernKeywords {
		if strings.Contains(note, kw) {
			return true
		}
	}
	return false
}

// numericPayload tolerates the numeric types that show up after JSON or SQL
// decoding of a payload value.
func numericPayload(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
