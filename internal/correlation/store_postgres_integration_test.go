//go:build integration

package correlation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caresignal/internal/correlation"
	"caresignal/internal/signals"
	"caresignal/pkg/testutil/containers"
)

type PostgresEventStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *correlation.PostgresEventStore
}

func TestPostgresEventStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresEventStoreSuite))
}

func (s *PostgresEventStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = correlation.NewPostgresEventStore(s.postgres.DB)
	s.Require().NoError(s.store.Init(context.Background()))
}

func (s *PostgresEventStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"signal_contributions", "compound_events"))
}

func (s *PostgresEventStoreSuite) newEvent(subjectID string) (correlation.CompoundEvent, []correlation.SignalContribution) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	ev := correlation.CompoundEvent{
		ID:                      uuid.New(),
		SubjectID:               subjectID,
		RuleID:                  uuid.New(),
		RuleName:                "medication_adherence_vitals_pattern",
		Severity:                "HIGH",
		Confidence:              0.85,
		ReasoningText:           "reasoning",
		ReasoningDetail:         map[string]any{"rule": "medication_adherence_vitals_pattern"},
		WindowStart:             now.Add(-168 * time.Hour),
		WindowEnd:               now,
		ContributingSignalCount: 2,
		RequiresHumanAction:     true,
		CreatedAt:               now,
	}
	contribs := []correlation.SignalContribution{
		{
			CompoundEventID: ev.ID,
			Domain:          signals.DomainMedication,
			Source:          signals.SourceRef{Table: "medication_administration_events", ID: "med-1"},
			SignalType:      "administration",
			SignalTimestamp: now.Add(-time.Hour),
			Snapshot:        map[string]any{"status": "LATE"},
		},
		{
			CompoundEventID: ev.ID,
			Domain:          signals.DomainVital,
			Source:          signals.SourceRef{Table: "vital_measurements", ID: "vit-1"},
			SignalType:      "blood_pressure_systolic",
			SignalTimestamp: now.Add(-2 * time.Hour),
			Snapshot:        map[string]any{"value": 150.0},
		},
	}
	return ev, contribs
}

func (s *PostgresEventStoreSuite) TestCreateAndReadBack() {
	ctx := context.Background()
	ev, contribs := s.newEvent("subj-x")
	s.Require().NoError(s.store.CreateWithContributions(ctx, &ev, contribs))

	events, err := s.store.ListBySubject(ctx, "subj-x")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(ev.ID, events[0].ID)
	s.Equal(ev.ReasoningText, events[0].ReasoningText)
	s.InDelta(0.85, events[0].Confidence, 0.0001)

	got, err := s.store.ListContributions(ctx, ev.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	// Newest first.
	s.True(!got[0].SignalTimestamp.Before(got[1].SignalTimestamp))
}

func (s *PostgresEventStoreSuite) TestContributionRequiresParentEvent() {
	ctx := context.Background()
	ev, contribs := s.newEvent("subj-x")

	// Break the FK to force a rollback mid-transaction.
	contribs[1].CompoundEventID = uuid.New()
	err := s.store.CreateWithContributions(ctx, &ev, contribs)
	s.Require().Error(err)

	// All-or-nothing: neither the event nor the first contribution landed.
	events, err := s.store.ListBySubject(ctx, "subj-x")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *PostgresEventStoreSuite) TestListContributionsUnknownEvent() {
	_, err := s.store.ListContributions(context.Background(), uuid.New())
	s.ErrorIs(err, correlation.ErrNotFound)
}
