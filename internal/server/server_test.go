package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-task-monitor/internal/diff"
	"notion-task-monitor/internal/store"
)

type fakeDispatcher struct {
	calls int
	err   error
}

func (d *fakeDispatcher) Dispatch(context.Context) (store.RunRecord, error) {
	d.calls++
	if d.err != nil {
		return store.RunRecord{}, d.err
	}
	return store.RunRecord{ID: "run-42", Trigger: "manual", Status: "running"}, nil
}

func newServer(t *testing.T) (*httptest.Server, *fakeDispatcher) {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendChanges(ctx, []diff.Change{
		{Kind: diff.KindCreated, TaskID: "a", Title: "A", Status: "Todo", ChangedAt: at},
		{Kind: diff.KindCreated, TaskID: "b", Title: "B", Status: "Todo", ChangedAt: at.Add(time.Minute)},
	}))
	require.NoError(t, st.InsertRun(ctx, store.RunRecord{ID: "run-1", Job: "j", Trigger: "schedule", Status: "succeeded", StartedAt: at}))

	d := &fakeDispatcher{}
	srv := httptest.NewServer(New(Options{Changes: st, Runs: st, Dispatcher: d}).Handler())
	t.Cleanup(srv.Close)
	return srv, d
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangesLimit(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/changes?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []diff.Change
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].TaskID)
}

func TestBadLimit(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/runs?limit=-3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuns(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []store.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)
}

func TestRunsWithoutLedger(t *testing.T) {
	srv := httptest.NewServer(New(Options{Dispatcher: &fakeDispatcher{}}).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatch(t *testing.T) {
	srv, d := newServer(t)

	resp, err := http.Post(srv.URL+"/dispatch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var rec store.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "run-42", rec.ID)
	assert.Equal(t, 1, d.calls)

	get, err := http.Get(srv.URL + "/dispatch")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
	assert.Equal(t, 1, d.calls)
}

func TestDispatchStopped(t *testing.T) {
	srv, d := newServer(t)
	d.err = errors.New("scheduler stopped")
	resp, err := http.Post(srv.URL+"/dispatch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExport(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/export?format=csv&data=runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	bad, err := http.Get(srv.URL + "/export?format=xml")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(Options{}).ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunByID(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec store.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "schedule", rec.Trigger)

	missing, err := http.Get(srv.URL + "/runs/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

type failingChanges struct{}

func (failingChanges) Changes(context.Context, int) ([]diff.Change, error) {
	return nil, errors.New("notion: 503 service unavailable")
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(New(Options{Changes: failingChanges{}, Dispatcher: &fakeDispatcher{}}).Handler())
	defer srv.Close()

	for _, path := range []string{"/changes", "/export", "/export?format=csv"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/export?data=runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
