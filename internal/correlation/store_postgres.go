package correlation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresEventStore persists compound events and contributions. Each
// rule-satisfaction is written inside one transaction so partial writes
// cannot leave an event without its provenance or vice versa.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Init creates the event tables if they do not exist.
func (s *PostgresEventStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS compound_events (
			id UUID PRIMARY KEY,
			subject_id TEXT NOT NULL,
			rule_id UUID NOT NULL,
			rule_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			reasoning_text TEXT NOT NULL,
			reasoning_detail JSONB NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			contributing_signal_count INTEGER NOT NULL,
			requires_human_action BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_compound_events_subject ON compound_events(subject_id)`,
		`CREATE TABLE IF NOT EXISTS signal_contributions (
			compound_event_id UUID NOT NULL REFERENCES compound_events(id),
			source_domain TEXT NOT NULL,
			source_table TEXT NOT NULL,
			source_id TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			signal_timestamp TIMESTAMPTZ NOT NULL,
			signal_snapshot JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_contributions_event ON signal_contributions(compound_event_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init event tables: %w", err)
		}
	}
	return nil
}

func (s *PostgresEventStore) CreateWithContributions(ctx context.Context, event *CompoundEvent, contributions []SignalContribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()

	detail, err := json.Marshal(event.ReasoningDetail)
	if err != nil {
		return fmt.Errorf("marshal reasoning detail: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO compound_events
		 (id, subject_id, rule_id, rule_name, severity, confidence, reasoning_text, reasoning_detail,
		  window_start, window_end, contributing_signal_count, requires_human_action, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.SubjectID, event.RuleID, event.RuleName, event.Severity, event.Confidence,
		event.ReasoningText, detail, event.WindowStart, event.WindowEnd,
		event.ContributingSignalCount, event.RequiresHumanAction, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert compound event: %w", err)
	}

	for _, c := range contributions {
		snapshot, err := json.Marshal(c.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal signal snapshot: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO signal_contributions
			 (compound_event_id, source_domain, source_table, source_id, signal_type, signal_timestamp, signal_snapshot)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.CompoundEventID, c.Domain, c.Source.Table, c.Source.ID, c.SignalType, c.SignalTimestamp, snapshot)
		if err != nil {
			return fmt.Errorf("insert signal contribution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event tx: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) ListBySubject(ctx context.Context, subjectID string) ([]CompoundEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, rule_id, rule_name, severity, confidence, reasoning_text, reasoning_detail,
		        window_start, window_end, contributing_signal_count, requires_human_action, created_at
		 FROM compound_events
		 WHERE subject_id = $1
		 ORDER BY created_at DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list compound events: %w", err)
	}
	defer rows.Close()

	var out []CompoundEvent
	for rows.Next() {
		var (
			ev        CompoundEvent
			detailRaw []byte
		)
		err := rows.Scan(&ev.ID, &ev.SubjectID, &ev.RuleID, &ev.RuleName, &ev.Severity, &ev.Confidence,
			&ev.ReasoningText, &detailRaw, &ev.WindowStart, &ev.WindowEnd,
			&ev.ContributingSignalCount, &ev.RequiresHumanAction, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan compound event: %w", err)
		}
		if err := json.Unmarshal(detailRaw, &ev.ReasoningDetail); err != nil {
			return nil, fmt.Errorf("unmarshal reasoning detail: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresEventStore) ListContributions(ctx context.Context, eventID uuid.UUID) ([]SignalContribution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT compound_event_id, source_domain, source_table, source_id, signal_type, signal_timestamp, signal_snapshot
		 FROM signal_contributions
		 WHERE compound_event_id = $1
		 ORDER BY signal_timestamp DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list signal contributions: %w", err)
	}
	defer rows.Close()

	var out []SignalContribution
	for rows.Next() {
		var (
			c           SignalContribution
			snapshotRaw []byte
			ts          time.Time
		)
		err := rows.Scan(&c.CompoundEventID, &c.Domain, &c.Source.Table, &c.Source.ID, &c.SignalType, &ts, &snapshotRaw)
		if err != nil {
			return nil, fmt.Errorf("scan signal contribution: %w", err)
		}
		c.SignalTimestamp = ts
		if err := json.Unmarshal(snapshotRaw, &c.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal signal snapshot: %w", err)
		}
		out = append(out, c)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, rows.Err()
}

// PostgresSubjectDirectory checks subject existence against the residents
// table owned by the upstream CRUD layer.
type PostgresSubjectDirectory struct {
	db *sql.DB
}

func NewPostgresSubjectDirectory(db *sql.DB) *PostgresSubjectDirectory {
	return &PostgresSubjectDirectory{db: db}
}

func (d *PostgresSubjectDirectory) Exists(ctx context.Context, subjectID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM residents WHERE id = $1)`, subjectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subject exists: %w", err)
	}
	return exists, nil
}
