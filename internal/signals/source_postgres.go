package signals

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresSources adapts the four upstream observation tables into Signal
// streams. All queries are read-only; ownership of the rows stays with the
// upstream domains.
type PostgresSources struct {
	db *sql.DB
}

func NewPostgresSources(db *sql.DB) *PostgresSources {
	return &PostgresSources{db: db}
}

// All returns one source per domain, ready for registry construction.
func (p *PostgresSources) All() []Source {
	return []Source{
		&medicationSource{db: p.db},
		&vitalSource{db: p.db},
		&observationSource{db: p.db},
		&taskSource{db: p.db},
	}
}

type medicationSource struct {
	db *sql.DB
}

func (s *medicationSource) Domain() Domain { return DomainMedication }

func (s *medicationSource) ListWindow(ctx context.Context, subjectID string, start, end time.Time) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, medication_name, status, administered_at
		 FROM medication_administration_events
		 WHERE resident_id = $1 AND administered_at BETWEEN $2 AND $3`,
		subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query medication events: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var (
			id, name, status string
			at               time.Time
		)
		if err := rows.Scan(&id, &name, &status, &at); err != nil {
			return nil, fmt.Errorf("scan medication event: %w", err)
		}
		out = append(out, Signal{
			Domain:    DomainMedication,
			Subtype:   "administration",
			SubjectID: subjectID,
			Timestamp: at,
			Payload: map[string]any{
				KeyMedicationName: name,
				KeyStatus:         status,
			},
			Source: SourceRef{Table: "medication_administration_events", ID: id},
		})
	}
	return out, rows.Err()
}

type vitalSource struct {
	db *sql.DB
}

func (s *vitalSource) Domain() Domain { return DomainVital }

func (s *vitalSource) ListWindow(ctx context.Context, subjectID string, start, end time.Time) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, measurement_type, value, measured_at
		 FROM vital_measurements
		 WHERE resident_id = $1 AND measured_at BETWEEN $2 AND $3`,
		subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query vital measurements: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var (
			id, metricType string
			value          float64
			at             time.Time
		)
		if err := rows.Scan(&id, &metricType, &value, &at); err != nil {
			return nil, fmt.Errorf("scan vital measurement: %w", err)
		}
		out = append(out, Signal{
			Domain:    DomainVital,
			Subtype:   metricType,
			SubjectID: subjectID,
			Timestamp: at,
			Payload: map[string]any{
				KeyMeasurementType: metricType,
				KeyValue:           value,
			},
			Source: SourceRef{Table: "vital_measurements", ID: id},
		})
	}
	return out, rows.Err()
}

type observationSource struct {
	db *sql.DB
}

func (s *observationSource) Domain() Domain { return DomainObservation }

func (s *observationSource) ListWindow(ctx context.Context, subjectID string, start, end time.Time) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, concern_level, description, observed_at
		 FROM concern_observations
		 WHERE resident_id = $1 AND observed_at BETWEEN $2 AND $3`,
		subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query concern observations: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var (
			id, level   string
			description sql.NullString
			at          time.Time
		)
		if err := rows.Scan(&id, &level, &description, &at); err != nil {
			return nil, fmt.Errorf("scan concern observation: %w", err)
		}
		out = append(out, Signal{
			Domain:    DomainObservation,
			Subtype:   "third_party_concern",
			SubjectID: subjectID,
			Timestamp: at,
			Payload: map[string]any{
				KeyConcernLevel: level,
				KeyDescription:  description.String,
			},
			Source: SourceRef{Table: "concern_observations", ID: id},
		})
	}
	return out, rows.Err()
}

type taskSource struct {
	db *sql.DB
}

func (s *taskSource) Domain() Domain { return DomainTask }

func (s *taskSource) ListWindow(ctx context.Context, subjectID string, start, end time.Time) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, completed, COALESCE(completion_note, ''), completed_at
		 FROM care_tasks
		 WHERE resident_id = $1 AND completed_at BETWEEN $2 AND $3`,
		subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query care tasks: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var (
			id, title, note string
			completed       bool
			at              time.Time
		)
		if err := rows.Scan(&id, &title, &completed, &note, &at); err != nil {
			return nil, fmt.Errorf("scan care task: %w", err)
		}
		out = append(out, Signal{
			Domain:    DomainTask,
			Subtype:   "completion",
			SubjectID: subjectID,
			Timestamp: at,
			Payload: map[string]any{
				KeyTaskTitle: title,
				KeyCompleted: completed,
				KeyNote:      note,
			},
			Source: SourceRef{Table: "care_tasks", ID: id},
		})
	}
	return out, rows.Err()
}
