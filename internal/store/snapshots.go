package store

import (
	"context"
	"fmt"
	"time"

	"notion-task-monitor/internal/diff"
)

// LoadSnapshots returns the last saved state of every task.
func (s *Store) LoadSnapshots(ctx context.Context) (map[string]diff.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, title, status, url, observed_at FROM task_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]diff.Snapshot{}
	for rows.Next() {
		var v diff.Snapshot
		if err := rows.Scan(&v.TaskID, &v.Title, &v.Status, &v.URL, &v.ObservedAt); err != nil {
			return nil, err
		}
		out[v.TaskID] = v
	}
	return out, rows.Err()
}

// SaveSnapshots replaces the stored state with snaps in one transaction.
func (s *Store) SaveSnapshots(ctx context.Context, snaps map[string]diff.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO task_snapshots (task_id, title, status, url, observed_at) VALUES (?,?,?,?,?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, v := range snaps {
		if _, err := stmt.ExecContext(ctx, v.TaskID, v.Title, v.Status, v.URL, v.ObservedAt.UTC()); err != nil {
			return fmt.Errorf("save snapshot %s: %w", v.TaskID, err)
		}
	}
	return tx.Commit()
}

// AppendChanges adds changes to the change log.
func (s *Store) AppendChanges(ctx context.Context, changes []diff.Change) error {
	for _, c := range changes {
		_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO change_events
    (kind, task_id, title, previous_status, status, url, changed_at)
    VALUES (?,?,?,?,?,?,?)`),
			string(c.Kind), c.TaskID, c.Title, c.PreviousStatus, c.Status, c.URL, c.ChangedAt.UTC())
		if err != nil {
			return fmt.Errorf("append change for %s: %w", c.TaskID, err)
		}
	}
	return nil
}

// Changes returns up to limit changes, newest first. limit <= 0 means all.
func (s *Store) Changes(ctx context.Context, limit int) ([]diff.Change, error) {
	q := `SELECT kind, task_id, title, previous_status, status, url, changed_at
    FROM change_events ORDER BY changed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []diff.Change
	for rows.Next() {
		var (
			c    diff.Change
			kind string
			at   time.Time
		)
		if err := rows.Scan(&kind, &c.TaskID, &c.Title, &c.PreviousStatus, &c.Status, &c.URL, &at); err != nil {
			return nil, err
		}
		c.Kind = diff.Kind(kind)
		c.ChangedAt = at.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
