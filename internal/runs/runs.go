// Package runs keeps the ledger of job runs: which trigger started them,
// how they ended and with which exit code.
package runs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"notion-task-monitor/internal/store"
)

// Trigger is what started a job.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Outcome is how a run ended.
type Outcome struct {
	ExitCode int
	// Phase names the step that failed: "setup" or "script".
	Phase string
	Err   error
}

// Ledger is the set of store operations a Manager needs.
type Ledger interface {
	InsertRun(ctx context.Context, r store.RunRecord) error
	UpdateRun(ctx context.Context, r store.RunRecord) error
	Runs(ctx context.Context, limit int) ([]store.RunRecord, error)
}

type Manager struct {
	ledger Ledger
	job    string
	now    func() time.Time
}

// NewManager returns a manager for job. A nil ledger keeps nothing.
func NewManager(ledger Ledger, job string) *Manager {
	return &Manager{ledger: ledger, job: job, now: time.Now}
}

// Begin records a new running run.
func (m *Manager) Begin(ctx context.Context, trigger Trigger) (store.RunRecord, error) {
	r := store.RunRecord{
		ID:        uuid.NewString(),
		Job:       m.job,
		Trigger:   string(trigger),
		Status:    StatusRunning,
		StartedAt: m.now().UTC(),
	}
	if m.ledger == nil {
		return r, nil
	}
	return r, m.ledger.InsertRun(ctx, r)
}

// Finish stores the outcome of r and returns the updated record.
func (m *Manager) Finish(ctx context.Context, r store.RunRecord, out Outcome) (store.RunRecord, error) {
	done := m.now().UTC()
	r.FinishedAt = &done
	r.ExitCode = out.ExitCode
	r.Status = StatusSucceeded
	r.Phase = ""
	r.Error = ""
	if out.ExitCode != 0 || out.Err != nil {
		r.Status = StatusFailed
		r.Phase = out.Phase
		if out.Err != nil {
			r.Error = out.Err.Error()
		}
	}
	if m.ledger == nil {
		return r, nil
	}
	return r, m.ledger.UpdateRun(ctx, r)
}

// List returns the latest runs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if m.ledger == nil {
		return nil, nil
	}
	return m.ledger.Runs(ctx, limit)
}
