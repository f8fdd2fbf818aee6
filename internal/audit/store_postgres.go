package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists the audit trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the audit table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS correlation_audit_log (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			subject_id TEXT NOT NULL,
			action TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			event_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("init audit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correlation_audit_log (ts, subject_id, action, rule_name, event_id, severity, detail, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.Timestamp, event.SubjectID, event.Action, event.RuleName,
		event.EventID, event.Severity, event.Detail, event.RequestID)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, subject_id, action, rule_name, event_id, severity, detail, request_id
		 FROM correlation_audit_log
		 WHERE subject_id = $1
		 ORDER BY ts DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		err := rows.Scan(&ev.Timestamp, &ev.SubjectID, &ev.Action, &ev.RuleName,
			&ev.EventID, &ev.Severity, &ev.Detail, &ev.RequestID)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
