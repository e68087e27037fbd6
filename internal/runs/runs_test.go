package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-task-monitor/internal/store"
)

func newManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	m := NewManager(st, "notion-task-monitor")
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m, st
}

func TestBeginFinishSuccess(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	r, err := m.Begin(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusRunning, r.Status)

	r, err = m.Finish(ctx, r, Outcome{})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, r.Status)

	stored, err := st.Run(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, stored.Status)
	assert.Equal(t, "schedule", stored.Trigger)
	require.NotNil(t, stored.FinishedAt)
	assert.True(t, stored.FinishedAt.After(stored.StartedAt))
}

func TestFinishFailure(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	r, err := m.Begin(ctx, TriggerManual)
	require.NoError(t, err)
	r, err = m.Finish(ctx, r, Outcome{ExitCode: 2, Phase: "script", Err: errors.New("exit status 2")})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "script", r.Phase)
	assert.Equal(t, 2, r.ExitCode)

	list, err := m.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exit status 2", list[0].Error)
	assert.Equal(t, "manual", list[0].Trigger)
}

func TestNilLedger(t *testing.T) {
	m := NewManager(nil, "job")
	ctx := context.Background()
	r, err := m.Begin(ctx, TriggerManual)
	require.NoError(t, err)
	r, err = m.Finish(ctx, r, Outcome{ExitCode: 1, Phase: "setup"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	list, err := m.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
