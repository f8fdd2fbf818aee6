package correlation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryEventStore backs dev mode and tests. The single mutex makes the
// event+contributions write naturally atomic.
type InMemoryEventStore struct {
	mu            sync.RWMutex
	events        []CompoundEvent
	contributions map[uuid.UUID][]SignalContribution
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{contributions: make(map[uuid.UUID][]SignalContribution)}
}

func (s *InMemoryEventStore) CreateWithContributions(_ context.Context, event *CompoundEvent, contributions []SignalContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	s.contributions[event.ID] = append([]SignalContribution(nil), contributions...)
	return nil
}

func (s *InMemoryEventStore) ListBySubject(_ context.Context, subjectID string) ([]CompoundEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CompoundEvent
	for _, ev := range s.events {
		if ev.SubjectID == subjectID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *InMemoryEventStore) ListContributions(_ context.Context, eventID uuid.UUID) ([]SignalContribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contribs, ok := s.contributions[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]SignalContribution(nil), contribs...), nil
}

// InMemorySubjectDirectory is a fixed set of known subject IDs for dev and
// test wiring.
type InMemorySubjectDirectory struct {
	mu       sync.RWMutex
	subjects map[string]bool
}

func NewInMemorySubjectDirectory(subjectIDs ...string) *InMemorySubjectDirectory {
	d := &InMemorySubjectDirectory{subjects: make(map[string]bool, len(subjectIDs))}
	for _, id := range subjectIDs {
		d.subjects[id] = true
	}
	return d
}

func (d *InMemorySubjectDirectory) Add(subjectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[subjectID] = true
}

func (d *InMemorySubjectDirectory) Exists(_ context.Context, subjectID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subjects[subjectID], nil
}
