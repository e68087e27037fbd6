package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RunRecord is one row of the job run ledger.
type RunRecord struct {
	ID         string     `json:"id"`
	Job        string     `json:"job"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Phase      string     `json:"phase,omitempty"`
	ExitCode   int        `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (s *Store) InsertRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO job_runs
    (id, job, trigger_kind, status, phase, exit_code, error, started_at, finished_at)
    VALUES (?,?,?,?,?,?,?,?,?)`),
		r.ID, r.Job, r.Trigger, r.Status, r.Phase, r.ExitCode, r.Error, r.StartedAt.UTC(), utcPtr(r.FinishedAt))
	return err
}

// UpdateRun stores the outcome fields of r.
func (s *Store) UpdateRun(ctx context.Context, r RunRecord) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE job_runs
    SET status=?, phase=?, exit_code=?, error=?, finished_at=?
    WHERE id=?`),
		r.Status, r.Phase, r.ExitCode, r.Error, utcPtr(r.FinishedAt), r.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Run(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, job, trigger_kind, status, phase, exit_code, error, started_at, finished_at
    FROM job_runs WHERE id=?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return r, err
}

// Runs returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT id, job, trigger_kind, status, phase, exit_code, error, started_at, finished_at
    FROM job_runs ORDER BY started_at DESC`
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

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		r        RunRecord
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Job, &r.Trigger, &r.Status, &r.Phase, &r.ExitCode, &r.Error, &r.StartedAt, &finished); err != nil {
		return RunRecord{}, err
	}
	r.StartedAt = r.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
