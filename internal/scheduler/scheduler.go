// Package scheduler fires the job on its cron schedule and on manual
// dispatch. Runs may overlap; each one is tracked under its own run id.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"notion-task-monitor/internal/job"
	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/runs"
	"notion-task-monitor/internal/store"
	"notion-task-monitor/pkg/mq"
)

// JobFunc runs one job. A returned *job.ExitError carries the exit code.
type JobFunc func(ctx context.Context) error

type Options struct {
	Schedule  string
	Timezone  string
	Job       JobFunc
	Runs      *runs.Manager
	Publisher mq.Publisher
	Logger    *log.Logger
}

type Scheduler struct {
	cron   *cron.Cron
	job    JobFunc
	runs   *runs.Manager
	pub    mq.Publisher
	logger *log.Logger

	mu      sync.Mutex
	base    context.Context
	stopped bool
	wg      sync.WaitGroup
}

// New parses the schedule and prepares a stopped scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Job == nil {
		return nil, errors.New("scheduler: nil job")
	}
	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, err)
	}
	logger := logging.OrDiscard(opts.Logger)
	if opts.Runs == nil {
		opts.Runs = runs.NewManager(nil, "")
	}
	if opts.Publisher == nil {
		opts.Publisher = mq.Noop{}
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(logging.CronLogger{L: logger})),
		job:    opts.Job,
		runs:   opts.Runs,
		pub:    opts.Publisher,
		logger: logger,
		base:   context.Background(),
	}
	if _, err := s.cron.AddFunc(opts.Schedule, s.fire); err != nil {
		return nil, fmt.Errorf("scheduler: schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start begins firing on schedule. Jobs inherit ctx's values but not its
// cancellation: Stop waits for them instead.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = context.WithoutCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	if next := s.Next(); !next.IsZero() {
		s.logger.Info("scheduler started", "next", next.Format(time.RFC3339))
	}
}

// Next returns the next scheduled fire time, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Dispatch triggers a manual run and returns its ledger record without
// waiting for it to finish.
func (s *Scheduler) Dispatch(ctx context.Context) (store.RunRecord, error) {
	return s.trigger(ctx, runs.TriggerManual)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if _, err := s.trigger(ctx, runs.TriggerSchedule); err != nil {
		s.logger.Error("scheduled run not started", "err", err)
	}
}

var ErrStopped = errors.New("scheduler stopped")

func (s *Scheduler) trigger(ctx context.Context, trigger runs.Trigger) (store.RunRecord, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return store.RunRecord{}, ErrStopped
	}
	s.wg.Add(1)
	base := s.base
	s.mu.Unlock()

	rec, err := s.runs.Begin(ctx, trigger)
	if err != nil {
		s.wg.Done()
		return rec, fmt.Errorf("record run: %w", err)
	}
	s.logger.Info("run started", "id", rec.ID, "trigger", trigger)

	go func() {
		defer s.wg.Done()
		s.execute(base, rec)
	}()
	return rec, nil
}

func (s *Scheduler) execute(ctx context.Context, rec store.RunRecord) {
	err := s.job(ctx)
	out := runs.Outcome{ExitCode: job.Code(err), Phase: job.Phase(err), Err: err}
	if err != nil && out.Phase == "" {
		out.Phase = job.PhaseScript
	}

	rec, ferr := s.runs.Finish(ctx, rec, out)
	if ferr != nil {
		s.logger.Error("record run result", "id", rec.ID, "err", ferr)
	}
	if err != nil {
		s.logger.Error("run failed", "id", rec.ID, "phase", out.Phase, "code", out.ExitCode, "err", err)
	} else {
		s.logger.Info("run succeeded", "id", rec.ID)
	}
	if perr := mq.PublishJSON(ctx, s.pub, mq.TopicJobFinished, rec); perr != nil {
		s.logger.Warn("publish run result", "id", rec.ID, "err", perr)
	}
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
