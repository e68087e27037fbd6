package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-task-monitor/internal/diff"
)

var base = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("oracle", "oracle://localhost")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "UPDATE t SET a=$1, b=$2 WHERE id=$3", pg.rebind("UPDATE t SET a=?, b=? WHERE id=?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT ? LIMIT ?", lite.rebind("SELECT ? LIMIT ?"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate(context.Background()))
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestSnapshotsReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := diff.Index([]diff.Snapshot{
		{TaskID: "a", Title: "A", Status: "Todo", URL: "https://www.notion.so/a", ObservedAt: base},
		{TaskID: "b", Title: "B", Status: "Done", ObservedAt: base},
	})
	require.NoError(t, s.SaveSnapshots(ctx, first))

	got, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Todo", got["a"].Status)
	assert.Equal(t, "https://www.notion.so/a", got["a"].URL)
	assert.True(t, base.Equal(got["a"].ObservedAt))

	second := diff.Index([]diff.Snapshot{{TaskID: "a", Title: "A", Status: "Done", ObservedAt: base.Add(time.Minute)}})
	require.NoError(t, s.SaveSnapshots(ctx, second))

	got, err = s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Done", got["a"].Status)
}

func TestChangesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendChanges(ctx, []diff.Change{
		{Kind: diff.KindCreated, TaskID: "a", Title: "A", Status: "Todo", ChangedAt: base},
		{Kind: diff.KindStatusChanged, TaskID: "a", Title: "A", PreviousStatus: "Todo", Status: "Done", ChangedAt: base.Add(15 * time.Minute)},
		{Kind: diff.KindRemoved, TaskID: "b", Title: "B", PreviousStatus: "Todo", ChangedAt: base.Add(30 * time.Minute)},
	}))

	all, err := s.Changes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, diff.KindRemoved, all[0].Kind)
	assert.Equal(t, diff.KindCreated, all[2].Kind)

	two, err := s.Changes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "Todo", two[1].PreviousStatus)
	assert.Equal(t, "Done", two[1].Status)
	assert.True(t, base.Add(15*time.Minute).Equal(two[1].ChangedAt))
}

func TestRunLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := RunRecord{ID: "run-1", Job: "monitor", Trigger: "schedule", Status: "running", StartedAt: base}
	require.NoError(t, s.InsertRun(ctx, r))
	require.NoError(t, s.InsertRun(ctx, RunRecord{ID: "run-2", Job: "monitor", Trigger: "manual", Status: "running", StartedAt: base.Add(time.Minute)}))

	got, err := s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "schedule", got.Trigger)
	assert.Nil(t, got.FinishedAt)

	done := base.Add(2 * time.Minute)
	r.Status, r.Phase, r.ExitCode, r.Error, r.FinishedAt = "failed", "script", 3, "exit status 3", &done
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err = s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "script", got.Phase)
	assert.Equal(t, 3, got.ExitCode)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, done.Equal(*got.FinishedAt))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)

	_, err = s.Run(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateRun(ctx, RunRecord{ID: "missing"}), ErrNotFound)
}
