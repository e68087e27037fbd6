package main

import (
	"context"

	"github.com/spf13/cobra"

	"notion-task-monitor/internal/config"
	"notion-task-monitor/internal/job"
	"notion-task-monitor/internal/runs"
	"notion-task-monitor/internal/store"
	"notion-task-monitor/pkg/mq"
)

func newJobCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "job",
		Short: "Run the wrapped job once: setup steps, then the script",
		Long: `Run the configured setup steps and then spawn the monitoring script once
with NOTION_TOKEN, TASK_DATABASE_ID and HISTORY_DATABASE_ID in its
environment. The exit code is the script's exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			mgr := runs.NewManager(ledger(st), a.cfg.Job.Name)
			ctx := cmd.Context()
			rec, err := mgr.Begin(ctx, runs.TriggerManual)
			if err != nil {
				a.logger.Warn("record run", "err", err)
			}
			runErr := runner.Run(ctx)
			rec, err = mgr.Finish(context.WithoutCancel(ctx), rec, runs.Outcome{
				ExitCode: job.Code(runErr), Phase: job.Phase(runErr), Err: runErr,
			})
			if err != nil {
				a.logger.Warn("record run result", "err", err)
			}
			if err := mq.PublishJSON(context.WithoutCancel(ctx), a.publisher(), mq.TopicJobFinished, rec); err != nil {
				a.logger.Warn("publish run result", "err", err)
			}
			return runErr
		},
	}
}

func (a *app) newRunner(cmd *cobra.Command) (*job.Runner, error) {
	env := a.cfg.Notion.Env()
	for k, v := range config.ChangedFlagEnv(cmd.Flags()) {
		env[k] = v
	}
	r, err := job.New(a.cfg.Job, env, a.logger)
	if err != nil {
		return nil, err
	}
	if len(a.cfg.Job.Script.Command) == 0 {
		r.Script = append(r.Script[:1:1], a.runArgs()...)
	}
	r.Stdout = cmd.OutOrStdout()
	r.Stderr = cmd.ErrOrStderr()
	return r, nil
}

// runArgs points the default "run" child at the config file this process
// read. The .env file was already loaded into the inherited environment.
func (a *app) runArgs() []string {
	args := []string{"--env-file", "-"}
	if a.cfg.File != "" {
		args = append(args, "--config", a.cfg.File)
	}
	return append(args, "run")
}

// ledger avoids handing runs.NewManager a typed nil.
func ledger(st *store.Store) runs.Ledger {
	if st == nil {
		return nil
	}
	return st
}
