package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) (*Journal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	journal, err := Open(path, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	return journal, path
}

func TestJournalInFlight(t *testing.T) {
	journal, _ := openJournal(t)

	entry, err := journal.Current()
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, journal.EnsureIdle())

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Record(InFlight{
		RunID:     "run-1",
		From:      types.StateAllOld,
		Target:    types.StateAllNew,
		Step:      types.StateCanaryNew,
		StartedAt: started,
	}))
	require.NoError(t, journal.Record(InFlight{
		RunID:     "run-1",
		From:      types.StateAllOld,
		Target:    types.StateAllNew,
		Step:      types.StateHalfAndHalf,
		StartedAt: started,
	}))

	entry, err = journal.Current()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, types.StateHalfAndHalf, entry.Step)
	assert.True(t, started.Equal(entry.StartedAt))

	err = journal.EnsureIdle()
	assert.ErrorIs(t, err, ErrInFlight)
	var inFlight *InFlightError
	require.True(t, errors.As(err, &inFlight))
	assert.Contains(t, err.Error(), "HALF_AND_HALF")

	require.NoError(t, journal.Clear())
	assert.NoError(t, journal.EnsureIdle())
	assert.NoError(t, journal.Clear(), "clearing twice is fine")
}

func TestJournalLocked(t *testing.T) {
	_, path := openJournal(t)

	_, err := Open(path, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	journal, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, journal.Record(InFlight{RunID: "run-2", Step: types.StateCanaryOld}))
	require.NoError(t, journal.Close())

	journal, err = Open(path, time.Second)
	require.NoError(t, err)
	defer journal.Close()

	entry, err := journal.Current()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, types.StateCanaryOld, entry.Step)
	assert.Equal(t, path, journal.Path())
}
