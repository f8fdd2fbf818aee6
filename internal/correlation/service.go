package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caresignal/internal/audit"
	"caresignal/internal/correlation/metrics"
	"caresignal/internal/rules"
	"caresignal/internal/signals"
)

// ErrInvalidWindow is returned when the caller supplies a non-positive
// window.
var ErrInvalidWindow = errors.New("window hours must be positive")

// Notifier publishes created compound events to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, event CompoundEvent) error
}

// AuditPublisher records engine actions on the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the Aggregate -> Evaluate -> Emit pipeline for one subject.
// It holds no state between runs; invoking it in parallel for different
// subjects is safe, and the optional locker rejects overlapping runs for the
// same subject.
type Service struct {
	rules     rules.Store
	agg       *Aggregator
	events    EventStore
	logger    *slog.Logger
	directory SubjectDirectory
	locker    Locker
	auditor   AuditPublisher
	notifier  Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(ruleStore rules.Store, agg *Aggregator, events EventStore, logger *slog.Logger) *Service {
	return &Service{
		rules:  ruleStore,
		agg:    agg,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// WithDirectory enables subject existence checks.
func (s *Service) WithDirectory(d SubjectDirectory) *Service {
	s.directory = d
	return s
}

// WithLocker enables per-subject run serialization.
func (s *Service) WithLocker(l Locker) *Service {
	s.locker = l
	return s
}

// WithAudit enables the audit trail.
func (s *Service) WithAudit(a AuditPublisher) *Service {
	s.auditor = a
	return s
}

// WithNotifier enables downstream event publishing.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithMetrics enables prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run evaluates all active correlation rules for the subject over the last
// windowHours and emits one compound event per satisfied rule. The engine
// does not deduplicate across repeated calls; the lock only prevents
// concurrent runs, not re-runs.
func (s *Service) Run(ctx context.Context, subjectID string, windowHours int) (*EvaluationResult, error) {
	if windowHours <= 0 {
		return nil, ErrInvalidWindow
	}
	start := time.Now()
	defer func() { s.metrics.ObserveRunLatency(time.Since(start)) }()

	now := s.now()
	window := Window{Start: now.Add(-time.Duration(windowHours) * time.Hour), End: now}
	result := &EvaluationResult{
		SubjectID:    subjectID,
		SubjectFound: true,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, subjectID)
		if err != nil {
			if errors.Is(err, ErrEvaluationInProgress) {
				s.metrics.IncrementRuns("locked")
			}
			return nil, err
		}
		defer release()
	}

	if s.directory != nil {
		exists, err := s.directory.Exists(ctx, subjectID)
		if err != nil {
			s.metrics.IncrementRuns("error")
			return nil, fmt.Errorf("subject lookup: %w", err)
		}
		if !exists {
			// Correlating an empty signal set is well-defined: zero counts,
			// no rule fires. Report the missing subject instead of failing.
			result.SubjectFound = false
			s.metrics.IncrementRuns("subject_not_found")
			return result, nil
		}
	}

	active, err := s.rules.ListActive(ctx)
	if err != nil {
		s.metrics.IncrementRuns("error")
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	evaluable := s.filterEvaluable(ctx, active, result)

	counts, matched, err := s.agg.Aggregate(ctx, subjectID, window, referencedDomains(evaluable))
	if err != nil {
		s.metrics.IncrementRuns("error")
		return nil, err
	}

	for _, rule := range EvaluateRules(counts, evaluable) {
		event, contributions := BuildEvent(subjectID, rule, matched, window, now)

		if err := s.events.CreateWithContributions(ctx, &event, contributions); err != nil {
			// All-or-nothing per rule: the store rolled back, the other
			// rules still get their chance.
			s.logger.ErrorContext(ctx, "compound event emit failed",
				"rule", rule.Name,
				"subject_id", subjectID,
				"error", err,
			)
			s.metrics.IncrementRuleErrors("emit_failed")
			s.recordAudit(ctx, audit.Event{
				SubjectID: subjectID,
				Action:    audit.ActionEventEmitFailed,
				RuleName:  rule.Name,
				Detail:    err.Error(),
			})
			result.FailedRules = append(result.FailedRules, RuleError{RuleName: rule.Name, Err: err})
			continue
		}

		result.EventsCreated++
		result.Events = append(result.Events, EventSummary{
			RuleName: rule.Name,
			EventID:  event.ID,
			Severity: event.Severity,
		})
		s.metrics.IncrementEventsCreated(rule.Name)
		s.logger.InfoContext(ctx, "compound event created",
			"rule", rule.Name,
			"subject_id", subjectID,
			"event_id", event.ID,
			"severity", event.Severity,
			"contributing_signals", event.ContributingSignalCount,
		)

		s.recordAudit(ctx, audit.Event{
			SubjectID: subjectID,
			Action:    audit.ActionCompoundEventCreated,
			RuleName:  rule.Name,
			EventID:   event.ID.String(),
			Severity:  event.Severity,
		})
		s.publish(ctx, event)
	}

	s.metrics.IncrementRuns("ok")
	return result, nil
}

// filterEvaluable drops malformed rules and rules referencing uncovered
// domains, recording each skip on the result. One bad rule never blocks the
// others.
func (s *Service) filterEvaluable(ctx context.Context, active []rules.CorrelationRule, result *EvaluationResult) []rules.CorrelationRule {
	evaluable := make([]rules.CorrelationRule, 0, len(active))
	for _, rule := range active {
		if err := rule.Validate(); err != nil {
			s.skipRule(ctx, rule, err, result)
			continue
		}
		var uncovered error
		for _, domain := range rule.RequiredDomains() {
			if !s.agg.Covers(domain) {
				uncovered = fmt.Errorf("rule %q: no source registered for domain %s", rule.Name, domain)
				break
			}
		}
		if uncovered != nil {
			s.skipRule(ctx, rule, uncovered, result)
			continue
		}
		evaluable = append(evaluable, rule)
	}
	return evaluable
}

func (s *Service) skipRule(ctx context.Context, rule rules.CorrelationRule, err error, result *EvaluationResult) {
	s.logger.WarnContext(ctx, "skipping rule", "rule", rule.Name, "error", err)
	s.metrics.IncrementRuleErrors("skipped")
	result.SkippedRules = append(result.SkippedRules, RuleError{RuleName: rule.Name, Err: err})
}

func (s *Service) recordAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event CompoundEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		// Best-effort: downstream delivery owns its own retries.
		s.logger.WarnContext(ctx, "event publish failed",
			"event_id", event.ID,
			"error", err,
		)
	}
}

// referencedDomains returns the union of domains the rules require, in
// stable order. Only these domains get aggregated.
func referencedDomains(ruleSet []rules.CorrelationRule) []signals.Domain {
	seen := make(map[signals.Domain]bool)
	var out []signals.Domain
	for _, domain := range signals.AllDomains() {
		for _, rule := range ruleSet {
			if _, ok := rule.Thresholds[domain]; ok && !seen[domain] {
				seen[domain] = true
				out = append(out, domain)
			}
		}
	}
	return out
}
