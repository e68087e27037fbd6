package collector

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jomei/notionapi"

	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/notion"
)

// TaskCollector reads every live task from the task database.
type TaskCollector struct {
	pager          *Pager
	databaseID     string
	statusProperty string
	logger         *log.Logger
}

// NewTaskCollector returns a collector over databaseID.
func NewTaskCollector(pager *Pager, databaseID, statusProperty string, logger *log.Logger) *TaskCollector {
	return &TaskCollector{
		pager:          pager,
		databaseID:     databaseID,
		statusProperty: statusProperty,
		logger:         logging.OrDiscard(logger),
	}
}

// Collect returns non-archived tasks ordered as Notion returns them.
func (c *TaskCollector) Collect(ctx context.Context) ([]notion.Task, error) {
	var tasks []notion.Task
	q := Query{
		Sorts: []notionapi.SortObject{{
			Timestamp: notionapi.TimestampCreated,
			Direction: notionapi.SortOrderASC,
		}},
	}
	err := c.pager.Each(ctx, c.databaseID, q, func(p notionapi.Page) error {
		t := notion.TaskFromPage(p, c.statusProperty)
		if t.Archived {
			return nil
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("collected tasks", "database", c.databaseID, "count", len(tasks))
	return tasks, nil
}
