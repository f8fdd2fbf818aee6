package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("rule not found")
	ErrNameTaken = errors.New("rule name already in use")
)

// Store is the correlation rule registry. The engine only reads active rules;
// create/deactivate exist for administrative tooling and seeding.
type Store interface {
	ListActive(ctx context.Context) ([]CorrelationRule, error)
	FindByName(ctx context.Context, name string) (*CorrelationRule, error)
	Create(ctx context.Context, rule *CorrelationRule) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}
