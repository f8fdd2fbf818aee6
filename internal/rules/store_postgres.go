package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"caresignal/internal/signals"
)

// PostgresStore persists correlation rules. Thresholds are stored as JSONB so
// new domains need no schema change.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the rules table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS correlation_rules (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			thresholds JSONB NOT NULL,
			severity TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			requires_human_action BOOLEAN NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("init correlation_rules: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]CorrelationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, thresholds, severity, confidence, requires_human_action, active
		 FROM correlation_rules
		 WHERE active = TRUE
		 ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []CorrelationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*CorrelationRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, thresholds, severity, confidence, requires_human_action, active
		 FROM correlation_rules WHERE name = $1`, name)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (s *PostgresStore) Create(ctx context.Context, rule *CorrelationRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	thresholds, err := json.Marshal(rule.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO correlation_rules (id, name, thresholds, severity, confidence, requires_human_action, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.ID, rule.Name, thresholds, rule.Severity, rule.Confidence, rule.RequiresHumanAction, rule.Active)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrNameTaken
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE correlation_rules SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (CorrelationRule, error) {
	var (
		rule          CorrelationRule
		thresholdsRaw []byte
	)
	err := row.Scan(&rule.ID, &rule.Name, &thresholdsRaw, &rule.Severity,
		&rule.Confidence, &rule.RequiresHumanAction, &rule.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("scan rule: %w", err)
	}
	thresholds := make(map[signals.Domain]int)
	if err := json.Unmarshal(thresholdsRaw, &thresholds); err != nil {
		return rule, fmt.Errorf("unmarshal thresholds for rule %q: %w", rule.Name, err)
	}
	rule.Thresholds = thresholds
	return rule, nil
}
