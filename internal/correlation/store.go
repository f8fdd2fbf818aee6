package correlation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("compound event not found")

// EventStore persists compound events and their contribution links. Both
// writes for one satisfied rule must be atomic: a contribution must never
// exist without its parent event.
type EventStore interface {
	CreateWithContributions(ctx context.Context, event *CompoundEvent, contributions []SignalContribution) error
	ListBySubject(ctx context.Context, subjectID string) ([]CompoundEvent, error)
	ListContributions(ctx context.Context, eventID uuid.UUID) ([]SignalContribution, error)
}

// SubjectDirectory answers whether a subject exists at all, so a run against
// an unknown subject can report "not found" instead of silently returning
// zero counts.
type SubjectDirectory interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
}
