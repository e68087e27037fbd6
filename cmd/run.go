package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring pass",
		Long: `Compare the task database against the last recorded state and write
every change to the history database.

Requires NOTION_TOKEN, TASK_DATABASE_ID and HISTORY_DATABASE_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			m, err := a.newMonitor(st)
			if err != nil {
				return err
			}
			rep, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}
			verb := "recorded"
			n := rep.Recorded
			if rep.DryRun {
				verb, n = "found (dry run)", len(rep.Changes)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tasks, %d changes %s\n", rep.Tasks, n, verb)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "compare only, write nothing")
	cmd.Flags().String("snapshot-source", "notion", "where the previous state comes from: notion|sql")
	return cmd
}
