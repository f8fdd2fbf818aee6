package signals

import (
	"context"
	"sync"
	"time"
)

// MemorySource holds signals for one domain in memory. It backs dev mode and
// tests; durable deployments use the postgres sources.
type MemorySource struct {
	domain  Domain
	mu      sync.RWMutex
	signals []Signal
}

func NewMemorySource(domain Domain) *MemorySource {
	return &MemorySource{domain: domain}
}

func (s *MemorySource) Domain() Domain {
	return s.domain
}

// Add records a signal. Signals with a mismatched domain are ignored so a
// test cannot accidentally cross streams.
func (s *MemorySource) Add(sig Signal) {
	if sig.Domain != s.domain {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func (s *MemorySource) ListWindow(_ context.Context, subjectID string, start, end time.Time) ([]Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Signal
	for _, sig := range s.signals {
		if sig.SubjectID != subjectID {
			continue
		}
		if sig.Timestamp.Before(start) || sig.Timestamp.After(end) {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}
