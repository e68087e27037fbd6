package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-task-monitor/internal/notion/notiontest"
)

func newPager(fake *notiontest.Fake) *Pager {
	return &Pager{Service: fake, PageSize: 2, MaxRetry: 2, Backoff: time.Millisecond}
}

// timedService records when each query reached the service.
type timedService struct {
	*notiontest.Fake
	mu    sync.Mutex
	times []time.Time
}

func (s *timedService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	return s.Fake.QueryDatabase(ctx, databaseID, req)
}

func TestCollectPaginates(t *testing.T) {
	fake := notiontest.New()
	for i := 1; i <= 5; i++ {
		fake.AddPage("tasks", notiontest.TaskPage(fmt.Sprintf("t%d", i), fmt.Sprintf("Task %d", i), "Todo"))
	}
	archived := notiontest.TaskPage("t6", "Archived", "Done")
	archived.Archived = true
	fake.AddPage("tasks", archived)

	c := NewTaskCollector(newPager(fake), "tasks", "Status", nil)
	tasks, err := c.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, tasks, 5)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "Task 5", tasks[4].Title)
	assert.Equal(t, "Todo", tasks[4].Status)
	assert.Equal(t, "https://www.notion.so/t1", tasks[0].URL)
	assert.Equal(t, 3, fake.Queries)
}

func TestCollectRetriesServerErrors(t *testing.T) {
	fake := notiontest.New()
	fake.AddPage("tasks", notiontest.TaskPage("t1", "Task 1", "Todo"))
	fake.QueryErrs = []error{
		&notionapi.Error{Status: 503, Message: "unavailable"},
		errors.New("connection reset"),
	}

	tasks, err := NewTaskCollector(newPager(fake), "tasks", "Status", nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 3, fake.Queries)
}

func TestCollectGivesUpAfterMaxRetry(t *testing.T) {
	fake := notiontest.New()
	fake.QueryErrs = []error{
		&notionapi.Error{Status: 429},
		&notionapi.Error{Status: 429},
		&notionapi.Error{Status: 429},
		&notionapi.Error{Status: 429},
	}

	_, err := NewTaskCollector(newPager(fake), "tasks", "Status", nil).Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, fake.Queries)
}

func TestCollectDoesNotRetryClientErrors(t *testing.T) {
	fake := notiontest.New()
	fake.QueryErrs = []error{&notionapi.Error{Status: 401, Code: "unauthorized"}}

	_, err := NewTaskCollector(newPager(fake), "tasks", "Status", nil).Collect(context.Background())
	require.Error(t, err)
	var apiErr *notionapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, 1, fake.Queries)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{&notionapi.Error{Status: 400}, false},
		{&notionapi.Error{Status: 404}, false},
		{&notionapi.Error{Status: 429}, true},
		{&notionapi.Error{Status: 502}, true},
		{errors.New("dial tcp: timeout"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.err), "%v", tt.err)
	}
}

func TestRetryGapsGrowLinearly(t *testing.T) {
	fake := notiontest.New()
	fake.AddPage("tasks", notiontest.TaskPage("t1", "Task 1", "Todo"))
	fake.QueryErrs = []error{
		&notionapi.Error{Status: 500},
		&notionapi.Error{Status: 502},
		&notionapi.Error{Status: 503},
	}
	svc := &timedService{Fake: fake}
	step := 40 * time.Millisecond
	pager := &Pager{Service: svc, MaxRetry: 3, Backoff: step}

	tasks, err := NewTaskCollector(pager, "tasks", "Status", nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.Len(t, svc.times, 4)
	for i := 1; i < len(svc.times); i++ {
		gap := svc.times[i].Sub(svc.times[i-1])
		assert.GreaterOrEqual(t, gap, step*time.Duration(i), "gap before attempt %d", i+1)
	}
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	fake := notiontest.New()
	fake.QueryErrs = []error{&notionapi.Error{Status: 503}, &notionapi.Error{Status: 503}}
	pager := &Pager{Service: fake, MaxRetry: 5, Backoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewTaskCollector(pager, "tasks", "Status", nil).Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, fake.Queries)
}

func TestLinearBackOff(t *testing.T) {
	b := NewLinearBackOff(0)
	assert.Equal(t, DefaultBackoff, b.NextBackOff())
	assert.Equal(t, 2*DefaultBackoff, b.NextBackOff())
	b.Reset()
	assert.Equal(t, DefaultBackoff, b.NextBackOff())

	b = NewLinearBackOff(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 600*time.Millisecond, b.NextBackOff())
}
