package collector

import (
	"context"

	"notion-task-monitor/internal/notion"
)

// Collector returns the current contents of a task source.
type Collector interface {
	Collect(ctx context.Context) ([]notion.Task, error)
}
