// Package notion wraps the Notion API calls taskmonitor needs behind a small
// interface and maps database pages to tasks and history entries.
package notion

import (
	"context"
	"net/http"

	"github.com/jomei/notionapi"
)

// Service is the slice of the Notion API used by the monitor.
type Service interface {
	// QueryDatabase runs one page of a database query.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// CreatePage creates a page in a database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// GetDatabase returns the database schema.
	GetDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error)
}

// Client implements Service on top of notionapi.
type Client struct {
	api *notionapi.Client
}

// NewClient returns a client authenticated with token. httpClient may be nil.
func NewClient(token string, httpClient *http.Client, rateLimitRetries int) *Client {
	opts := []notionapi.ClientOption{notionapi.WithRetry(rateLimitRetries)}
	if httpClient != nil {
		opts = append(opts, notionapi.WithHTTPClient(httpClient))
	}
	return &Client{api: notionapi.NewClient(notionapi.Token(token), opts...)}
}

func (c *Client) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
}

func (c *Client) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
}

func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error) {
	return c.api.Database.Get(ctx, notionapi.DatabaseID(databaseID))
}
