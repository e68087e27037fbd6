package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"notion-task-monitor/internal/config"
	"notion-task-monitor/internal/logging"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	envFile    string

	cfg    *config.Config
	logger *log.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "taskmonitor",
		Short: "Watch a Notion task database and record every change",
		Long: `taskmonitor compares the tasks of a Notion database against their last
known state and records each change as a page of a history database.

It runs a single pass ("run"), wraps that pass the way a CI job would
("job"), or keeps firing it every 15 minutes ("schedule").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./taskmonitor.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", `.env file to preload ("-" disables)`)
	root.PersistentFlags().String("log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().String("store-driver", "sqlite", "sqlite|mysql|postgres")
	root.PersistentFlags().String("store-dsn", "", "SQL store DSN; empty disables the store")

	root.AddCommand(
		newRunCommand(a),
		newJobCommand(a),
		newScheduleCommand(a),
		newDispatchCommand(),
		newRunsCommand(a),
		newExportCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{
		ConfigFile: a.configFile,
		DotEnv:     a.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	logger.Debug("config loaded", "config", cfg.Redacted())
	return nil
}
