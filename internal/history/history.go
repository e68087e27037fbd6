// Package history records task changes as pages of the Notion history
// database and rebuilds the last known task states from those pages.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jomei/notionapi"

	"notion-task-monitor/internal/collector"
	"notion-task-monitor/internal/diff"
	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/notion"
	"notion-task-monitor/pkg/cache"
)

// Column names of the history database. The title column keeps whatever
// name the database gives it.
const (
	PropTaskID         = "Task ID"
	PropChange         = "Change"
	PropPreviousStatus = "Previous Status"
	PropStatus         = "Status"
	PropChangedAt      = "Changed At"
	PropTaskURL        = "Task URL"
)

// ErrNoTitleProperty is returned when the history database has no title column.
var ErrNoTitleProperty = errors.New("history database has no title property")

// Book reads and writes the history database.
type Book struct {
	svc        notion.Service
	pager      *collector.Pager
	databaseID string
	titles     *cache.MemoryCache
	logger     *log.Logger
}

// New returns a Book over databaseID.
func New(svc notion.Service, pager *collector.Pager, databaseID string, logger *log.Logger) *Book {
	return &Book{
		svc:        svc,
		pager:      pager,
		databaseID: databaseID,
		titles:     cache.NewMemory(time.Hour),
		logger:     logging.OrDiscard(logger).With("history", databaseID),
	}
}

// Record writes one change as a history page.
func (b *Book) Record(ctx context.Context, c diff.Change) error {
	title, err := b.titleProperty(ctx)
	if err != nil {
		return err
	}
	if _, err := b.svc.CreatePage(ctx, b.databaseID, Properties(title, c)); err != nil {
		return fmt.Errorf("record %s change for task %s: %w", c.Kind, c.TaskID, err)
	}
	b.logger.Debug("recorded change", "task", c.TaskID, "kind", c.Kind)
	return nil
}

// Load returns every history entry, oldest first. Entries that do not parse
// (hand-edited rows, missing task id) are skipped.
func (b *Book) Load(ctx context.Context) ([]diff.Change, error) {
	type entry struct {
		change  diff.Change
		created time.Time
	}
	var entries []entry
	skipped := 0
	q := collector.Query{
		Sorts: []notionapi.SortObject{
			{Property: PropChangedAt, Direction: notionapi.SortOrderASC},
			{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
		},
	}
	err := b.pager.Each(ctx, b.databaseID, q, func(p notionapi.Page) error {
		c, ok := ChangeFromPage(p)
		if !ok {
			skipped++
			return nil
		}
		entries = append(entries, entry{change: c, created: p.CreatedTime})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		b.logger.Warn("skipped unreadable history entries", "count", skipped)
	}
	// Entries written in the same second are ordered by page creation.
	sort.SliceStable(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if !a.change.ChangedAt.Equal(c.change.ChangedAt) {
			return a.change.ChangedAt.Before(c.change.ChangedAt)
		}
		return a.created.Before(c.created)
	})
	out := make([]diff.Change, len(entries))
	for i, e := range entries {
		out[i] = e.change
	}
	return out, nil
}

// Changes returns up to limit recorded changes, newest first. limit <= 0
// means all.
func (b *Book) Changes(ctx context.Context, limit int) ([]diff.Change, error) {
	all, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// LoadSnapshots rebuilds the last known state of every task from the history.
func (b *Book) LoadSnapshots(ctx context.Context) (map[string]diff.Snapshot, error) {
	changes, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	return diff.Apply(nil, changes), nil
}

func (b *Book) titleProperty(ctx context.Context) (string, error) {
	return b.titles.GetOrLoad(b.databaseID, func() (string, error) {
		db, err := b.svc.GetDatabase(ctx, b.databaseID)
		if err != nil {
			return "", fmt.Errorf("read history schema: %w", err)
		}
		for name, cfg := range db.Properties {
			if cfg.GetType() == notionapi.PropertyConfigTypeTitle {
				return name, nil
			}
		}
		return "", ErrNoTitleProperty
	})
}

// Properties lays a change out as history page properties.
func Properties(titleProperty string, c diff.Change) notionapi.Properties {
	changedAt := notionapi.Date(c.ChangedAt)
	props := notionapi.Properties{
		titleProperty:      &notionapi.TitleProperty{Title: notion.RichText(c.Title)},
		PropTaskID:         &notionapi.RichTextProperty{RichText: notion.RichText(c.TaskID)},
		PropChange:         &notionapi.SelectProperty{Select: notionapi.Option{Name: string(c.Kind)}},
		PropPreviousStatus: &notionapi.RichTextProperty{RichText: notion.RichText(c.PreviousStatus)},
		PropStatus:         &notionapi.RichTextProperty{RichText: notion.RichText(c.Status)},
		PropChangedAt:      &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &changedAt}},
	}
	if c.URL != "" {
		props[PropTaskURL] = &notionapi.URLProperty{URL: c.URL}
	}
	return props
}

// ChangeFromPage reads a history page back into a change.
func ChangeFromPage(p notionapi.Page) (diff.Change, bool) {
	id := notion.Text(p.Properties, PropTaskID)
	kind, ok := diff.ParseKind(notion.Text(p.Properties, PropChange))
	if id == "" || !ok {
		return diff.Change{}, false
	}
	at, ok := notion.Time(p.Properties, PropChangedAt)
	if !ok {
		at = p.CreatedTime
	}
	return diff.Change{
		Kind:           kind,
		TaskID:         id,
		Title:          notion.Title(p.Properties),
		PreviousStatus: notion.Text(p.Properties, PropPreviousStatus),
		Status:         notion.Text(p.Properties, PropStatus),
		URL:            notion.Text(p.Properties, PropTaskURL),
		ChangedAt:      at,
	}, true
}
