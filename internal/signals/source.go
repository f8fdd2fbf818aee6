package signals

import (
	"context"
	"time"
)

// Source is a read-only view over one observation domain, normalized into
// Signal records. Implementations must never mutate upstream rows.
type Source interface {
	Domain() Domain
	ListWindow(ctx context.Context, subjectID string, start, end time.Time) ([]Signal, error)
}

// Registry maps each domain to its registered source. The aggregation loop
// iterates the registry, so adding a stream means adding an entry here.
type Registry map[Domain]Source

// NewRegistry builds a registry from the given sources, keyed by domain.
func NewRegistry(sources ...Source) Registry {
	reg := make(Registry, len(sources))
	for _, src := range sources {
		reg[src.Domain()] = src
	}
	return reg
}
