// Package store persists task snapshots, recorded changes and job runs in
// MySQL, PostgreSQL or SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db     *sql.DB
	driver string
}

// New opens the database and creates missing tables. MySQL DSNs need
// parseTime=true.
func New(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverMySQL, DriverSQLite:
		sqlDriver = driver
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() string { return s.driver }

func (s *Store) migrate(ctx context.Context) error {
	ddl := sqliteSchema
	switch s.driver {
	case DriverMySQL:
		ddl = mysqlSchema
	case DriverPostgres:
		ddl = postgresSchema
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if s.driver == DriverMySQL {
		// MySQL lacks IF NOT EXISTS for CREATE INDEX; ignore duplicates
		_ = s.execIgnoreDupIndex(ctx, `CREATE INDEX idx_changes_changed_at ON change_events(changed_at)`)
		_ = s.execIgnoreDupIndex(ctx, `CREATE INDEX idx_runs_started_at ON job_runs(started_at)`)
	}
	return nil
}

func (s *Store) execIgnoreDupIndex(ctx context.Context, ddl string) error {
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		e := err.Error()
		if strings.Contains(e, "Duplicate key name") || strings.Contains(e, "1061") {
			return nil
		}
	}
	return err
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries here never
// contain a literal '?'.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_snapshots (
    task_id     TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    observed_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS change_events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    kind            TEXT NOT NULL,
    task_id         TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    previous_status TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    changed_at      DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_changed_at ON change_events(changed_at)`,
	`CREATE TABLE IF NOT EXISTS job_runs (
    id          TEXT PRIMARY KEY,
    job         TEXT NOT NULL,
    trigger_kind TEXT NOT NULL,
    status      TEXT NOT NULL,
    phase       TEXT NOT NULL DEFAULT '',
    exit_code   INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON job_runs(started_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_snapshots (
    task_id     VARCHAR(64) PRIMARY KEY,
    title       TEXT NOT NULL,
    status      VARCHAR(200) NOT NULL DEFAULT '',
    url         VARCHAR(512) NOT NULL DEFAULT '',
    observed_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS change_events (
    id              BIGINT PRIMARY KEY AUTO_INCREMENT,
    kind            VARCHAR(32) NOT NULL,
    task_id         VARCHAR(64) NOT NULL,
    title           TEXT NOT NULL,
    previous_status VARCHAR(200) NOT NULL DEFAULT '',
    status          VARCHAR(200) NOT NULL DEFAULT '',
    url             VARCHAR(512) NOT NULL DEFAULT '',
    changed_at      DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS job_runs (
    id           VARCHAR(36) PRIMARY KEY,
    job          VARCHAR(200) NOT NULL,
    trigger_kind VARCHAR(20) NOT NULL,
    status       VARCHAR(20) NOT NULL,
    phase        VARCHAR(20) NOT NULL DEFAULT '',
    exit_code    INT NOT NULL DEFAULT 0,
    error        TEXT NOT NULL,
    started_at   DATETIME(6) NOT NULL,
    finished_at  DATETIME(6) NULL
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_snapshots (
    task_id     TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    observed_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS change_events (
    id              BIGSERIAL PRIMARY KEY,
    kind            TEXT NOT NULL,
    task_id         TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    previous_status TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    changed_at      TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_changed_at ON change_events(changed_at)`,
	`CREATE TABLE IF NOT EXISTS job_runs (
    id           TEXT PRIMARY KEY,
    job          TEXT NOT NULL,
    trigger_kind TEXT NOT NULL,
    status       TEXT NOT NULL,
    phase        TEXT NOT NULL DEFAULT '',
    exit_code    INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON job_runs(started_at)`,
}
