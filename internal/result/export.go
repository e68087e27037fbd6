// Package result renders the change log and the run ledger as json, csv or
// pdf.
package result

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"notion-task-monitor/internal/diff"
	"notion-task-monitor/internal/store"
)

// Datasets.
const (
	Changes = "changes"
	Runs    = "runs"
)

var (
	ErrNoRuns      = errors.New("run ledger not configured")
	ErrUnsupported = errors.New("unsupported export")
)

type ChangeSource interface {
	Changes(ctx context.Context, limit int) ([]diff.Change, error)
}

type RunSource interface {
	Runs(ctx context.Context, limit int) ([]store.RunRecord, error)
}

type Exporter struct {
	changes ChangeSource
	runs    RunSource
	// Limit caps the rows exported; 0 exports everything.
	Limit int
}

// NewExporter returns an exporter. runs may be nil when no SQL store is set up.
func NewExporter(changes ChangeSource, runs RunSource) *Exporter {
	return &Exporter{changes: changes, runs: runs}
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "csv":
		return "text/csv"
	case "pdf":
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Export renders dataset ("changes" or "runs", default changes) in format
// ("json", "csv" or "pdf", default json).
func (e *Exporter) Export(ctx context.Context, dataset, format string) ([]byte, error) {
	if format == "" {
		format = "json"
	}
	format = strings.ToLower(format)
	if format != "json" && format != "csv" && format != "pdf" {
		return nil, fmt.Errorf("%w: format %s", ErrUnsupported, format)
	}
	t, err := e.table(ctx, dataset)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return json.MarshalIndent(t.rows, "", "  ")
	case "csv":
		return t.csv()
	default:
		return t.pdf()
	}
}

// table is a dataset flattened for csv and pdf output. rows keeps the
// typed values for json.
type table struct {
	title  string
	header []string
	cells  [][]string
	rows   any
}

func (e *Exporter) table(ctx context.Context, dataset string) (table, error) {
	switch dataset {
	case "", Changes:
		changes, err := e.changes.Changes(ctx, e.Limit)
		if err != nil {
			return table{}, err
		}
		if changes == nil {
			changes = []diff.Change{}
		}
		t := table{
			title:  "Task Change Report",
			header: []string{"changed_at", "kind", "task_id", "title", "previous_status", "status", "url"},
			rows:   changes,
		}
		for _, c := range changes {
			t.cells = append(t.cells, []string{
				c.ChangedAt.UTC().Format(time.RFC3339), string(c.Kind), c.TaskID, c.Title, c.PreviousStatus, c.Status, c.URL,
			})
		}
		return t, nil
	case Runs:
		if e.runs == nil {
			return table{}, ErrNoRuns
		}
		runs, err := e.runs.Runs(ctx, e.Limit)
		if err != nil {
			return table{}, err
		}
		if runs == nil {
			runs = []store.RunRecord{}
		}
		t := table{
			title:  "Job Run Report",
			header: []string{"id", "job", "trigger", "status", "phase", "exit_code", "started_at", "finished_at", "error"},
			rows:   runs,
		}
		for _, r := range runs {
			finished := ""
			if r.FinishedAt != nil {
				finished = r.FinishedAt.UTC().Format(time.RFC3339)
			}
			t.cells = append(t.cells, []string{
				r.ID, r.Job, r.Trigger, r.Status, r.Phase, strconv.Itoa(r.ExitCode),
				r.StartedAt.UTC().Format(time.RFC3339), finished, r.Error,
			})
		}
		return t, nil
	default:
		return table{}, fmt.Errorf("%w: dataset %s", ErrUnsupported, dataset)
	}
}

func (t table) csv() ([]byte, error) {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	_ = w.Write(t.header)
	_ = w.WriteAll(t.cells)
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (t table) pdf() ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, t.title)
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s, %d entries", time.Now().UTC().Format(time.RFC3339), len(t.cells)))
	pdf.Ln(8)
	for _, row := range t.cells {
		var parts []string
		for i, cell := range row {
			if cell == "" {
				continue
			}
			parts = append(parts, t.header[i]+"="+cell)
		}
		pdf.MultiCell(0, 5, tr(strings.Join(parts, "  ")), "0", "L", false)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
