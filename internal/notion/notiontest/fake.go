// Package notiontest provides an in-memory notion.Service for tests.
package notiontest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/jomei/notionapi"

	"notion-task-monitor/internal/notion"
)

// Fake keeps pages per database in memory. Queries return pages in insertion
// order, PageSize at a time, ignoring filters and sorts.
type Fake struct {
	mu      sync.Mutex
	pages   map[string][]notionapi.Page
	schemas map[string]notionapi.PropertyConfigs
	nextID  int

	// QueryErrs are returned, one per call, before queries succeed.
	QueryErrs []error
	// CreateErr, when set, fails every CreatePage.
	CreateErr error

	Queries     int
	SchemaReads int
}

var _ notion.Service = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		pages:   map[string][]notionapi.Page{},
		schemas: map[string]notionapi.PropertyConfigs{},
	}
}

// AddPage appends a page to a database.
func (f *Fake) AddPage(databaseID string, p notionapi.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[databaseID] = append(f.pages[databaseID], p)
}

// SetSchema sets the property configs returned by GetDatabase.
func (f *Fake) SetSchema(databaseID string, props notionapi.PropertyConfigs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[databaseID] = props
}

// Pages returns a copy of a database's pages.
func (f *Fake) Pages(databaseID string) []notionapi.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notionapi.Page(nil), f.pages[databaseID]...)
}

func (f *Fake) QueryDatabase(_ context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries++
	if len(f.QueryErrs) > 0 {
		err := f.QueryErrs[0]
		f.QueryErrs = f.QueryErrs[1:]
		return nil, err
	}
	all := f.pages[databaseID]
	start := 0
	if req.StartCursor != "" {
		n, err := strconv.Atoi(string(req.StartCursor))
		if err != nil {
			return nil, &notionapi.Error{Status: 400, Code: "validation_error", Message: "bad cursor"}
		}
		start = n
	}
	size := req.PageSize
	if size <= 0 {
		size = 100
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	resp := &notionapi.DatabaseQueryResponse{
		Object:  notionapi.ObjectTypeList,
		Results: append([]notionapi.Page(nil), all[start:end]...),
	}
	if end < len(all) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

func (f *Fake) CreatePage(_ context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	p := notionapi.Page{
		Object:     notionapi.ObjectTypePage,
		ID:         notionapi.ObjectID(fmt.Sprintf("page-%d", f.nextID)),
		Properties: properties,
	}
	f.pages[databaseID] = append(f.pages[databaseID], p)
	return &p, nil
}

func (f *Fake) GetDatabase(_ context.Context, databaseID string) (*notionapi.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SchemaReads++
	props, ok := f.schemas[databaseID]
	if !ok {
		return nil, &notionapi.Error{Status: 404, Code: "object_not_found", Message: "database not found"}
	}
	return &notionapi.Database{
		Object:     notionapi.ObjectTypeDatabase,
		ID:         notionapi.ObjectID(databaseID),
		Properties: props,
	}, nil
}

// TaskPage builds a task database page.
func TaskPage(id, title, status string) notionapi.Page {
	return notionapi.Page{
		Object: notionapi.ObjectTypePage,
		ID:     notionapi.ObjectID(id),
		URL:    "https://www.notion.so/" + id,
		Properties: notionapi.Properties{
			"Name":   &notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: notion.RichText(title)},
			"Status": &notionapi.StatusProperty{Type: notionapi.PropertyTypeStatus, Status: notionapi.Status{Name: status}},
		},
	}
}
