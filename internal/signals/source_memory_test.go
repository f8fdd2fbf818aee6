package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySourceWindowFiltering(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	src := NewMemorySource(DomainVital)

	inWindow := Signal{Domain: DomainVital, SubjectID: "subj-x", Timestamp: now.Add(-time.Hour)}
	atStart := Signal{Domain: DomainVital, SubjectID: "subj-x", Timestamp: now.Add(-24 * time.Hour)}
	tooOld := Signal{Domain: DomainVital, SubjectID: "subj-x", Timestamp: now.Add(-25 * time.Hour)}
	otherSubject := Signal{Domain: DomainVital, SubjectID: "subj-y", Timestamp: now.Add(-time.Hour)}

	for _, s := range []Signal{inWindow, atStart, tooOld, otherSubject} {
		src.Add(s)
	}

	got, err := src.ListWindow(context.Background(), "subj-x", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemorySourceRejectsWrongDomain(t *testing.T) {
	src := NewMemorySource(DomainTask)
	src.Add(Signal{Domain: DomainVital, SubjectID: "subj-x", Timestamp: time.Now()})

	got, err := src.ListWindow(context.Background(), "subj-x", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
