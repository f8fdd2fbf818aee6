package correlation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"caresignal/internal/audit"
	"caresignal/internal/rules"
	"caresignal/internal/signals"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func obsSignal(subjectID string, ts time.Time, id, level string) signals.Signal {
	return signals.Signal{
		Domain:    signals.DomainObservation,
		Subtype:   "third_party_concern",
		SubjectID: subjectID,
		Timestamp: ts,
		Payload: map[string]any{
			signals.KeyConcernLevel: level,
		},
		Source: signals.SourceRef{Table: "concern_observations", ID: id},
	}
}

type ServiceSuite struct {
	suite.Suite
	sources map[signals.Domain]*signals.MemorySource
	rules   *rules.InMemoryStore
	events  *InMemoryEventStore
	service *Service
}

func (s *ServiceSuite) SetupTest() {
	s.sources = make(map[signals.Domain]*signals.MemorySource)
	var registered []signals.Source
	for _, domain := range signals.AllDomains() {
		src := signals.NewMemorySource(domain)
		s.sources[domain] = src
		registered = append(registered, src)
	}

	s.rules = rules.NewInMemoryStore()
	require.NoError(s.T(), rules.Seed(context.Background(), s.rules))

	s.events = NewInMemoryEventStore()
	agg := NewAggregator(signals.NewRegistry(registered...), signals.DefaultPredicates(), time.Second, nil)
	s.service = NewService(s.rules, agg, s.events, discardLogger()).
		WithClock(func() time.Time { return fixedNow })
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) addMedication(subjectID, status string, age time.Duration, id string) {
	sig := medSignal(subjectID, fixedNow.Add(-age), id)
	sig.Abnormal = false
	sig.Payload[signals.KeyStatus] = status
	s.sources[signals.DomainMedication].Add(sig)
}

func (s *ServiceSuite) addVital(subjectID string, value float64, age time.Duration, id string) {
	sig := vitalSignal(subjectID, fixedNow.Add(-age), id, value)
	sig.Abnormal = false
	s.sources[signals.DomainVital].Add(sig)
}

func (s *ServiceSuite) addObservation(subjectID, level string, age time.Duration, id string) {
	s.sources[signals.DomainObservation].Add(obsSignal(subjectID, fixedNow.Add(-age), id, level))
}

// Scenario: 3 LATE medications plus one systolic reading of 150 over a 168h
// window satisfy the medication/vitals pattern and nothing else.
func (s *ServiceSuite) TestMedicationVitalsPatternFires() {
	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-x", "LATE", 30*time.Hour, "med-2")
	s.addMedication("subj-x", "LATE", 50*time.Hour, "med-3")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)

	require.Equal(s.T(), 1, result.EventsCreated)
	require.Len(s.T(), result.Events, 1)
	assert.Equal(s.T(), "medication_adherence_vitals_pattern", result.Events[0].RuleName)

	events, err := s.events.ListBySubject(context.Background(), "subj-x")
	require.NoError(s.T(), err)
	require.Len(s.T(), events, 1)
	assert.InDelta(s.T(), 0.85, events[0].Confidence, 0.0001)
	assert.Equal(s.T(), "HIGH", events[0].Severity)
	assert.Equal(s.T(), 4, events[0].ContributingSignalCount)
	assert.True(s.T(), events[0].RequiresHumanAction)
}

// Scenario: a single LATE medication misses the threshold of 2, so nothing
// fires even with an abnormal vital present.
func (s *ServiceSuite) TestBelowThresholdCreatesNothing() {
	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 0, result.EventsCreated)
	assert.Empty(s.T(), result.Events)
}

// Scenario: 2 late medications, 1 abnormal vital, and 1 urgent observation
// satisfy both the medication/vitals pattern and multi_domain_instability,
// producing two separate events.
func (s *ServiceSuite) TestMultipleRulesFireIndependently() {
	s.addMedication("subj-y", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-y", "MISSED", 30*time.Hour, "med-2")
	s.addVital("subj-y", 150, 20*time.Hour, "vit-1")
	s.addObservation("subj-y", "URGENT", 15*time.Hour, "obs-1")

	result, err := s.service.Run(context.Background(), "subj-y", 168)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 2, result.EventsCreated)
	names := []string{result.Events[0].RuleName, result.Events[1].RuleName}
	assert.Contains(s.T(), names, "medication_adherence_vitals_pattern")
	assert.Contains(s.T(), names, "multi_domain_instability")

	// Separate events, not one merged event.
	events, err := s.events.ListBySubject(context.Background(), "subj-y")
	require.NoError(s.T(), err)
	assert.Len(s.T(), events, 2)
}

// Scenario: a subject with zero signals in the window produces zero events
// and no errors.
func (s *ServiceSuite) TestZeroSignalsZeroEvents() {
	result, err := s.service.Run(context.Background(), "subj-empty", 168)
	require.NoError(s.T(), err)
	assert.True(s.T(), result.SubjectFound)
	assert.Equal(s.T(), 0, result.EventsCreated)
}

func (s *ServiceSuite) TestSignalsOutsideWindowIgnored() {
	s.addMedication("subj-x", "LATE", 200*time.Hour, "med-old-1")
	s.addMedication("subj-x", "LATE", 201*time.Hour, "med-old-2")
	s.addVital("subj-x", 150, 199*time.Hour, "vit-old")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 0, result.EventsCreated)
}

func (s *ServiceSuite) TestRepeatedRunsAreDeterministic() {
	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-x", "LATE", 30*time.Hour, "med-2")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	first, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)
	second, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)

	// Same satisfied rule set every run. The engine does not deduplicate
	// events across runs; that is the caller's concern.
	assert.Equal(s.T(), first.EventsCreated, second.EventsCreated)
	assert.Equal(s.T(), first.Events[0].RuleName, second.Events[0].RuleName)
}

func (s *ServiceSuite) TestProvenancePerRequiredDomain() {
	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-x", "LATE", 30*time.Hour, "med-2")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, result.EventsCreated)

	contributions, err := s.events.ListContributions(context.Background(), result.Events[0].EventID)
	require.NoError(s.T(), err)

	perDomain := map[signals.Domain]int{}
	for _, c := range contributions {
		perDomain[c.Domain]++
	}
	assert.Equal(s.T(), 2, perDomain[signals.DomainMedication])
	assert.Equal(s.T(), 1, perDomain[signals.DomainVital])
}

func (s *ServiceSuite) TestInvalidWindowRejected() {
	_, err := s.service.Run(context.Background(), "subj-x", 0)
	assert.ErrorIs(s.T(), err, ErrInvalidWindow)
}

func (s *ServiceSuite) TestMalformedRuleSkippedNotFatal() {
	broken := rules.CorrelationRule{
		Name:       "broken_rule",
		Thresholds: map[signals.Domain]int{},
		Active:     true,
	}
	require.NoError(s.T(), s.rules.Create(context.Background(), &broken))

	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-x", "LATE", 30*time.Hour, "med-2")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)

	// The bad rule is reported, the good rule still fires.
	require.Len(s.T(), result.SkippedRules, 1)
	assert.Equal(s.T(), "broken_rule", result.SkippedRules[0].RuleName)
	assert.Equal(s.T(), 1, result.EventsCreated)
}

func (s *ServiceSuite) TestSubjectNotFound() {
	directory := NewInMemorySubjectDirectory("known-subject")
	s.service.WithDirectory(directory)

	result, err := s.service.Run(context.Background(), "unknown-subject", 168)
	require.NoError(s.T(), err)
	assert.False(s.T(), result.SubjectFound)
	assert.Equal(s.T(), 0, result.EventsCreated)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, ErrEvaluationInProgress
}

func (s *ServiceSuite) TestLockBusyRejectsRun() {
	s.service.WithLocker(busyLocker{})
	_, err := s.service.Run(context.Background(), "subj-x", 168)
	assert.ErrorIs(s.T(), err, ErrEvaluationInProgress)
}

// failingEventStore fails persistence for one rule's event to prove per-rule
// atomicity and isolation.
type failingEventStore struct {
	*InMemoryEventStore
	failRule string
}

func (f *failingEventStore) CreateWithContributions(ctx context.Context, event *CompoundEvent, contributions []SignalContribution) error {
	if event.RuleName == f.failRule {
		return errors.New("storage unavailable")
	}
	return f.InMemoryEventStore.CreateWithContributions(ctx, event, contributions)
}

func (s *ServiceSuite) TestEmitFailureIsPerRule() {
	failing := &failingEventStore{
		InMemoryEventStore: NewInMemoryEventStore(),
		failRule:           "medication_adherence_vitals_pattern",
	}
	s.service.events = failing

	s.addMedication("subj-y", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-y", "MISSED", 30*time.Hour, "med-2")
	s.addVital("subj-y", 150, 20*time.Hour, "vit-1")
	s.addObservation("subj-y", "URGENT", 15*time.Hour, "obs-1")

	result, err := s.service.Run(context.Background(), "subj-y", 168)
	require.NoError(s.T(), err)

	// The failed rule is surfaced per-rule; the other satisfied rule still
	// creates its event, and no orphan contributions exist.
	require.Len(s.T(), result.FailedRules, 1)
	assert.Equal(s.T(), "medication_adherence_vitals_pattern", result.FailedRules[0].RuleName)
	assert.Equal(s.T(), 1, result.EventsCreated)
	assert.Equal(s.T(), "multi_domain_instability", result.Events[0].RuleName)

	events, err := failing.ListBySubject(context.Background(), "subj-y")
	require.NoError(s.T(), err)
	require.Len(s.T(), events, 1)
	assert.Equal(s.T(), "multi_domain_instability", events[0].RuleName)
}

func (s *ServiceSuite) TestAuditTrailRecordsCreatedEvents() {
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(16, discardLogger())
	worker := audit.NewWorker(auditStore, publisher.Inbox(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	s.service.WithAudit(publisher)
	s.addMedication("subj-x", "LATE", 10*time.Hour, "med-1")
	s.addMedication("subj-x", "LATE", 30*time.Hour, "med-2")
	s.addVital("subj-x", 150, 20*time.Hour, "vit-1")

	result, err := s.service.Run(context.Background(), "subj-x", 168)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, result.EventsCreated)

	assert.Eventually(s.T(), func() bool {
		entries, err := auditStore.ListBySubject(context.Background(), "subj-x")
		return err == nil && len(entries) == 1 &&
			entries[0].Action == audit.ActionCompoundEventCreated
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
