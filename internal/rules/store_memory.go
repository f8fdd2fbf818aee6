package rules

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"caresignal/internal/signals"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]CorrelationRule
	order []uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rules: make(map[uuid.UUID]CorrelationRule)}
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]CorrelationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CorrelationRule
	for _, id := range s.order {
		if rule := s.rules[id]; rule.Active {
			out = append(out, copyRule(rule))
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByName(_ context.Context, name string) (*CorrelationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rule := range s.rules {
		if rule.Name == name {
			r := copyRule(rule)
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) Create(_ context.Context, rule *CorrelationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.Name == rule.Name {
			return ErrNameTaken
		}
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.rules[rule.ID] = copyRule(*rule)
	s.order = append(s.order, rule.ID)
	return nil
}

func (s *InMemoryStore) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	rule.Active = false
	s.rules[id] = rule
	return nil
}

// copyRule deep-copies the thresholds map so callers cannot mutate stored
// rules through the returned value.
func copyRule(rule CorrelationRule) CorrelationRule {
	thresholds := make(map[signals.Domain]int, len(rule.Thresholds))
	for d, v := range rule.Thresholds {
		thresholds[d] = v
	}
	rule.Thresholds = thresholds
	return rule
}
