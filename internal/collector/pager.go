package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/jomei/notionapi"

	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/notion"
)

// Pager walks every page of a database query, retrying each request.
type Pager struct {
	Service  notion.Service
	PageSize int
	MaxRetry int
	// Backoff is multiplied by the attempt number between retries;
	// zero means DefaultBackoff.
	Backoff time.Duration
	Logger  *log.Logger
}

// Query describes what to fetch; the cursor and page size are managed by the pager.
type Query struct {
	Filter notionapi.Filter
	Sorts  []notionapi.SortObject
}

// Each calls fn for every page of the query result, in order.
func (p *Pager) Each(ctx context.Context, databaseID string, q Query, fn func(notionapi.Page) error) error {
	logger := logging.OrDiscard(p.Logger).With("database", databaseID)
	pageSize := p.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	var cursor notionapi.Cursor
	for batch := 1; ; batch++ {
		req := &notionapi.DatabaseQueryRequest{
			Filter:      q.Filter,
			Sorts:       q.Sorts,
			StartCursor: cursor,
			PageSize:    pageSize,
		}
		resp, err := p.queryWithRetry(ctx, databaseID, req)
		if err != nil {
			return fmt.Errorf("query database %s (batch %d): %w", databaseID, batch, err)
		}
		logger.Debug("fetched batch", "batch", batch, "pages", len(resp.Results), "has_more", resp.HasMore)
		for _, page := range resp.Results {
			if err := fn(page); err != nil {
				return err
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		cursor = resp.NextCursor
	}
}

func (p *Pager) queryWithRetry(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	logger := logging.OrDiscard(p.Logger)
	var resp *notionapi.DatabaseQueryResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := p.Service.QueryDatabase(ctx, databaseID, req)
		if err == nil {
			resp = r
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("query failed, retrying", "database", databaseID, "attempt", attempt, "wait", wait, "err", err)
	}
	retries := p.MaxRetry
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(NewLinearBackOff(p.Backoff), uint64(retries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// DefaultBackoff is the first retry delay when Pager.Backoff is zero.
const DefaultBackoff = 500 * time.Millisecond

// LinearBackOff waits step, 2*step, 3*step, ... between attempts.
type LinearBackOff struct {
	step time.Duration
	n    int
}

// NewLinearBackOff returns a linear policy. A non-positive step means
// DefaultBackoff.
func NewLinearBackOff(step time.Duration) *LinearBackOff {
	if step <= 0 {
		step = DefaultBackoff
	}
	return &LinearBackOff{step: step}
}

func (l *LinearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.step * time.Duration(l.n)
}

func (l *LinearBackOff) Reset() { l.n = 0 }

// Retryable reports whether err is worth another attempt: rate limiting,
// server errors and transport failures are; client errors are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}
