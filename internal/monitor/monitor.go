// Package monitor runs one pass of the task monitor: read the task database,
// compare it with the last known state and record what changed.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"notion-task-monitor/internal/collector"
	"notion-task-monitor/internal/diff"
	"notion-task-monitor/internal/logging"
	"notion-task-monitor/pkg/mq"
)

// SnapshotSource supplies the last known task states.
type SnapshotSource interface {
	LoadSnapshots(ctx context.Context) (map[string]diff.Snapshot, error)
}

// SnapshotSaver persists task states after a pass.
type SnapshotSaver interface {
	SaveSnapshots(ctx context.Context, snaps map[string]diff.Snapshot) error
}

// Recorder writes one change to the history database.
type Recorder interface {
	Record(ctx context.Context, c diff.Change) error
}

// ChangeLog keeps a local copy of recorded changes.
type ChangeLog interface {
	AppendChanges(ctx context.Context, changes []diff.Change) error
}

// Options wires a Monitor. Collector, Source and Recorder are required.
type Options struct {
	Collector collector.Collector
	Source    SnapshotSource
	Recorder  Recorder
	// Saver is set when Source does not already follow the recorded history.
	Saver     SnapshotSaver
	ChangeLog ChangeLog
	Publisher mq.Publisher
	DryRun    bool
	Now       func() time.Time
	Logger    *log.Logger
}

type Monitor struct {
	opts   Options
	logger *log.Logger
}

func New(opts Options) *Monitor {
	if opts.Publisher == nil {
		opts.Publisher = mq.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Report summarizes a pass.
type Report struct {
	Tasks    int           `json:"tasks"`
	Changes  []diff.Change `json:"changes"`
	Recorded int           `json:"recorded"`
	DryRun   bool          `json:"dry_run"`
}

// Run performs one pass. When recording fails part way, the changes already
// recorded stay recorded and are reflected in the saved snapshot.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	at := m.opts.Now().UTC().Truncate(time.Second)
	rep := Report{DryRun: m.opts.DryRun}

	tasks, err := m.opts.Collector.Collect(ctx)
	if err != nil {
		return rep, fmt.Errorf("collect tasks: %w", err)
	}
	rep.Tasks = len(tasks)

	prev, err := m.opts.Source.LoadSnapshots(ctx)
	if err != nil {
		return rep, fmt.Errorf("load previous state: %w", err)
	}

	curr := make([]diff.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		curr = append(curr, t.Snapshot(at))
	}
	rep.Changes = diff.Compare(prev, curr, at)
	m.logger.Info("compared tasks", "tasks", rep.Tasks, "known", len(prev), "changes", len(rep.Changes))

	if m.opts.DryRun {
		for _, c := range rep.Changes {
			m.logger.Info("would record change", "task", c.TaskID, "kind", c.Kind, "from", c.PreviousStatus, "to", c.Status)
		}
		return rep, nil
	}

	var recordErr error
	for _, c := range rep.Changes {
		if err := m.opts.Recorder.Record(ctx, c); err != nil {
			recordErr = err
			break
		}
		rep.Recorded++
		m.logger.Info("recorded change", "task", c.TaskID, "title", c.Title, "kind", c.Kind, "from", c.PreviousStatus, "to", c.Status)
	}
	recorded := rep.Changes[:rep.Recorded]

	if m.opts.Saver != nil {
		if err := m.opts.Saver.SaveSnapshots(ctx, diff.Apply(prev, recorded)); err != nil && recordErr == nil {
			recordErr = fmt.Errorf("save state: %w", err)
		}
	}
	if m.opts.ChangeLog != nil && len(recorded) > 0 {
		if err := m.opts.ChangeLog.AppendChanges(ctx, recorded); err != nil {
			m.logger.Warn("append change log", "err", err)
		}
	}
	for _, c := range recorded {
		if err := mq.PublishJSON(ctx, m.opts.Publisher, mq.TopicTaskChanged, c); err != nil {
			m.logger.Warn("publish change", "task", c.TaskID, "err", err)
		}
	}

	if recordErr != nil {
		return rep, fmt.Errorf("record changes (%d of %d recorded): %w", rep.Recorded, len(rep.Changes), recordErr)
	}
	return rep, nil
}
