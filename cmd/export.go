package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"notion-task-monitor/internal/result"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		format string
		data   string
		out    string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the change log or the run ledger",
		Example: `  taskmonitor export --format csv --out changes.csv
  taskmonitor export --data runs --format pdf --out runs.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			ex := result.NewExporter(a.changeSource(st), runSource(st))
			ex.Limit = limit
			b, err := ex.Export(cmd.Context(), data, format)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %s to %s\n", data, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json|csv|pdf")
	cmd.Flags().StringVar(&data, "data", result.Changes, "changes|runs")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows, 0 for all")
	return cmd
}
