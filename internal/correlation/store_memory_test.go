package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventStore(t *testing.T) {
	store := NewInMemoryEventStore()
	ev := CompoundEvent{
		ID:        uuid.New(),
		SubjectID: "subj-x",
		RuleName:  "r",
		CreatedAt: time.Now(),
	}
	contribs := []SignalContribution{
		{CompoundEventID: ev.ID, Domain: "medication", SignalType: "administration", SignalTimestamp: time.Now()},
		{CompoundEventID: ev.ID, Domain: "vital", SignalType: "heart_rate", SignalTimestamp: time.Now()},
	}
	require.NoError(t, store.CreateWithContributions(context.Background(), &ev, contribs))

	events, err := store.ListBySubject(context.Background(), "subj-x")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	none, err := store.ListBySubject(context.Background(), "subj-y")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := store.ListContributions(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = store.ListContributions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemorySubjectDirectory(t *testing.T) {
	dir := NewInMemorySubjectDirectory("subj-a")
	dir.Add("subj-b")

	for id, want := range map[string]bool{"subj-a": true, "subj-b": true, "subj-c": false} {
		got, err := dir.Exists(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}
