package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"caresignal/internal/correlation/metrics"
	"caresignal/internal/signals"
)

// defaultSourceTimeout bounds the per-run signal source fan-out when the
// caller does not configure one.
const defaultSourceTimeout = 5 * time.Second

// Aggregator counts abnormal signals per domain for one subject and window.
// Sources are queried in parallel and joined before anything downstream runs,
// so the engine stays synchronous from the caller's point of view.
type Aggregator struct {
	sources    signals.Registry
	predicates map[signals.Domain]signals.Predicate
	timeout    time.Duration
	metrics    *metrics.Metrics
}

func NewAggregator(sources signals.Registry, predicates map[signals.Domain]signals.Predicate, timeout time.Duration, m *metrics.Metrics) *Aggregator {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Aggregator{
		sources:    sources,
		predicates: predicates,
		timeout:    timeout,
		metrics:    m,
	}
}

// Covers reports whether both a source and a predicate are registered for
// the domain. Rules that reference an uncovered domain cannot be evaluated.
func (a *Aggregator) Covers(domain signals.Domain) bool {
	if _, ok := a.sources[domain]; !ok {
		return false
	}
	_, ok := a.predicates[domain]
	return ok
}

// Aggregate fetches the requested domains for the subject and window, applies
// each domain's abnormality predicate, and returns per-domain counts along
// with the matched signals for provenance linking.
//
// A subject with no signals yields zero counts, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, subjectID string, window Window, domains []signals.Domain) (Counts, map[signals.Domain][]signals.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	counts := make(Counts, len(domains))
	matches := make(map[signals.Domain][]signals.Signal, len(domains))

	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, domain := range domains {
		source, ok := a.sources[domain]
		if !ok {
			continue
		}
		predicate, ok := a.predicates[domain]
		if !ok {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			all, err := source.ListWindow(ctx, subjectID, window.Start, window.End)
			a.metrics.ObserveSourceLatency(string(domain), time.Since(start))
			if err != nil {
				return fmt.Errorf("aggregate %s signals: %w", domain, err)
			}

			var abnormal []signals.Signal
			for _, sig := range all {
				if !predicate(sig) {
					continue
				}
				sig.Abnormal = true
				abnormal = append(abnormal, sig)
			}

			mu.Lock()
			counts[domain] = len(abnormal)
			matches[domain] = abnormal
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return counts, matches, nil
}
