package main

import (
	"fmt"
	"net/http"

	"notion-task-monitor/internal/collector"
	"notion-task-monitor/internal/config"
	"notion-task-monitor/internal/history"
	"notion-task-monitor/internal/monitor"
	"notion-task-monitor/internal/notion"
	"notion-task-monitor/internal/result"
	"notion-task-monitor/internal/store"
	"notion-task-monitor/pkg/mq"
)

// notionParts is the Notion side of a monitoring pass.
type notionParts struct {
	tasks   *collector.TaskCollector
	history *history.Book
}

func (a *app) notion() notionParts {
	nc := a.cfg.Notion
	client := notion.NewClient(nc.Token, &http.Client{Timeout: nc.Timeout}, nc.MaxRetries)
	pager := &collector.Pager{
		Service:  client,
		PageSize: nc.PageSize,
		MaxRetry: nc.MaxRetries,
		Backoff:  nc.Backoff,
		Logger:   a.logger,
	}
	return notionParts{
		tasks:   collector.NewTaskCollector(pager, nc.TaskDatabaseID, nc.StatusProperty, a.logger),
		history: history.New(client, pager, nc.HistoryDatabaseID, a.logger),
	}
}

// openStore returns nil when no DSN is configured.
func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store.DSN == "" {
		return nil, nil
	}
	st, err := store.New(a.cfg.Store.Driver, a.cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Driver, err)
	}
	return st, nil
}

func (a *app) publisher() mq.Publisher {
	return mq.New(a.cfg.Notify.WebhookURL)
}

// newMonitor wires one pass. st may be nil.
func (a *app) newMonitor(st *store.Store) (*monitor.Monitor, error) {
	if err := config.RequireEnv(a.cfg.Notion.Env()); err != nil {
		return nil, err
	}
	n := a.notion()
	opts := monitor.Options{
		Collector: n.tasks,
		Source:    n.history,
		Recorder:  n.history,
		Publisher: a.publisher(),
		DryRun:    a.cfg.Monitor.DryRun,
		Logger:    a.logger,
	}
	if st != nil {
		opts.ChangeLog = st
		if a.cfg.Monitor.SnapshotSource == "sql" {
			opts.Source = st
			opts.Saver = st
		}
	}
	return monitor.New(opts), nil
}

// changeSource prefers the SQL change log and falls back to the history
// database.
func (a *app) changeSource(st *store.Store) result.ChangeSource {
	if st != nil {
		return st
	}
	return a.notion().history
}

// runSource is nil without a store.
func runSource(st *store.Store) result.RunSource {
	if st == nil {
		return nil
	}
	return st
}
