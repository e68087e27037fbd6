package main

import (
	"context"

	"github.com/spf13/cobra"

	"notion-task-monitor/internal/runs"
	"notion-task-monitor/internal/scheduler"
	"notion-task-monitor/internal/server"
)

func newScheduleCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Fire the job on its cron schedule until interrupted",
		Long: `Fire the job on job.schedule (default every 15 minutes, UTC). With
--http-addr the run ledger, change log and manual dispatch are served
over HTTP. On SIGINT or SIGTERM no new runs start and running ones are
awaited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			runner, err := a.newRunner(cmd)
			if err != nil {
				return err
			}
			sched, err := scheduler.New(scheduler.Options{
				Schedule:  a.cfg.Job.Schedule,
				Timezone:  a.cfg.Job.Timezone,
				Job:       runner.Run,
				Runs:      runs.NewManager(ledger(st), a.cfg.Job.Name),
				Publisher: a.publisher(),
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			sched.Start(ctx)

			srvErr := make(chan error, 1)
			if addr := a.cfg.Server.Addr; addr != "" {
				var runLedger server.RunLedger
				if st != nil {
					runLedger = st
				}
				srv := server.New(server.Options{
					Changes:    a.changeSource(st),
					Runs:       runLedger,
					Dispatcher: sched,
					Logger:     a.logger,
				})
				go func() { srvErr <- srv.ListenAndServe(ctx, addr) }()
			}

			select {
			case <-ctx.Done():
			case err = <-srvErr:
			}
			a.logger.Info("stopping scheduler")
			stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Job.Timeout)
			defer cancel()
			if stopErr := sched.Stop(stopCtx); stopErr != nil {
				a.logger.Warn("runs still active at shutdown", "err", stopErr)
			}
			return err
		},
	}
	cmd.Flags().String("http-addr", "", "serve the HTTP API on this address")
	return cmd
}
