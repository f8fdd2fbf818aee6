package correlation

import (
	"context"
	"errors"
)

// ErrEvaluationInProgress is returned when another run already holds the
// subject's evaluation lock. Concurrent runs for the same subject could
// duplicate events, so they are rejected rather than serialized here.
var ErrEvaluationInProgress = errors.New("evaluation already in progress for subject")

// Locker serializes evaluation runs per subject. Acquire returns a release
// function on success and ErrEvaluationInProgress when the lock is held.
type Locker interface {
	Acquire(ctx context.Context, subjectID string) (release func(), err error)
}
