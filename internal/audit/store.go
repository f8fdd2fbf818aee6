package audit

import "context"

// Store is the append-only audit sink. Implementations must never update or
// delete entries.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)
}
