package config

import "time"

// Names of the environment variables handed to the monitoring script.
const (
	EnvNotionToken       = "NOTION_TOKEN"
	EnvTaskDatabaseID    = "TASK_DATABASE_ID"
	EnvHistoryDatabaseID = "HISTORY_DATABASE_ID"
)

// Config holds all application configuration.
type Config struct {
	Notion  NotionConfig  `mapstructure:"notion" validate:"required"`
	Monitor MonitorConfig `mapstructure:"monitor" validate:"required"`
	Job     JobConfig     `mapstructure:"job" validate:"required"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Notify  NotifyConfig  `mapstructure:"notify"`

	// File is the absolute path of the config file read, "" when none was.
	File string `mapstructure:"-"`
}

// NotionConfig contains the Notion credential and the two database ids.
type NotionConfig struct {
	Token             string `mapstructure:"token"`
	TaskDatabaseID    string `mapstructure:"task_database_id"`
	HistoryDatabaseID string `mapstructure:"history_database_id"`
	StatusProperty    string `mapstructure:"status_property" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// Backoff is the first retry delay; later retries wait a multiple of it.
	Backoff  time.Duration `mapstructure:"backoff" validate:"gte=0"`
	PageSize int           `mapstructure:"page_size" validate:"gt=0,lte=100"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Env returns the three variables in the form the script expects.
func (c NotionConfig) Env() map[string]string {
	return map[string]string{
		EnvNotionToken:       c.Token,
		EnvTaskDatabaseID:    c.TaskDatabaseID,
		EnvHistoryDatabaseID: c.HistoryDatabaseID,
	}
}

// MonitorConfig controls a single monitoring pass.
type MonitorConfig struct {
	// SnapshotSource is where the previous task states come from.
	SnapshotSource string `mapstructure:"snapshot_source" validate:"oneof=notion sql"`
	DryRun         bool   `mapstructure:"dry_run"`
}

// JobConfig describes the invocation wrapper.
type JobConfig struct {
	Name     string        `mapstructure:"name" validate:"required"`
	Schedule string        `mapstructure:"schedule" validate:"required"`
	Timezone string        `mapstructure:"timezone" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	WorkDir  string        `mapstructure:"workdir"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Setup    []StepConfig  `mapstructure:"setup" validate:"dive"`
	Script   ScriptConfig  `mapstructure:"script"`
}

// RuntimeConfig names an interpreter that must be present before setup runs.
// An empty Command disables the probe.
type RuntimeConfig struct {
	Command     string   `mapstructure:"command"`
	Version     string   `mapstructure:"version" validate:"required_with=Command"`
	VersionArgs []string `mapstructure:"version_args"`
}

// StepConfig is one setup step, a shell snippet.
type StepConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	Run  string `mapstructure:"run" validate:"required"`
}

// ScriptConfig is the command spawned by the wrapper. An empty Command means
// "this binary, run subcommand".
type ScriptConfig struct {
	Command []string `mapstructure:"command"`
}

// StoreConfig selects the SQL store. An empty DSN disables it.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite mysql postgres"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig enables the HTTP surface in schedule mode when Addr is set.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig controls the charmbracelet logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json logfmt"`
}

// NotifyConfig configures the webhook publisher. Empty URL means no-op.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}
