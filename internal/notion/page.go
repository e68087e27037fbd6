package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"notion-task-monitor/internal/diff"
)

// Task is one row of the task database as observed by a pass.
type Task struct {
	ID             string
	Title          string
	Status         string
	URL            string
	LastEditedTime time.Time
	Archived       bool
}

// Snapshot converts the task into the state the diff engine compares.
func (t Task) Snapshot(at time.Time) diff.Snapshot {
	return diff.Snapshot{
		TaskID:     t.ID,
		Title:      t.Title,
		Status:     t.Status,
		URL:        t.URL,
		ObservedAt: at,
	}
}

// TaskFromPage reads a task database page. statusProperty names the column
// holding the status; status, select and rich text columns are understood.
func TaskFromPage(p notionapi.Page, statusProperty string) Task {
	return Task{
		ID:             string(p.ID),
		Title:          Title(p.Properties),
		Status:         Text(p.Properties, statusProperty),
		URL:            p.URL,
		LastEditedTime: p.LastEditedTime,
		Archived:       p.Archived,
	}
}

// Title returns the plain text of the page's title property.
func Title(props notionapi.Properties) string {
	for _, prop := range props {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			return PlainText(t.Title)
		}
	}
	return ""
}

// Text returns a textual rendering of the named property, or "" when the
// property is missing or of an unsupported type.
func Text(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.RichTextProperty:
		return PlainText(p.RichText)
	case *notionapi.TitleProperty:
		return PlainText(p.Title)
	case *notionapi.URLProperty:
		return p.URL
	}
	return ""
}

// Time returns the start of the named date property.
func Time(props notionapi.Properties, name string) (time.Time, bool) {
	p, ok := props[name].(*notionapi.DateProperty)
	if !ok || p.Date == nil || p.Date.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*p.Date.Start), true
}

// PlainText joins rich text segments.
func PlainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			b.WriteString(r.PlainText)
		case r.Text != nil:
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}

// RichText builds a single text segment. Notion caps a segment at 2000 chars.
func RichText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > 2000 {
		s = string(r[:2000])
	}
	return []notionapi.RichText{{
		Type:      notionapi.ObjectTypeText,
		Text:      &notionapi.Text{Content: s},
		PlainText: s,
	}}
}
