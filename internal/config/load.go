package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingEnv is returned when one of the script's required values is empty.
var ErrMissingEnv = errors.New("missing required environment")

// Options tune Load. Zero value loads from the working directory.
type Options struct {
	// ConfigFile overrides the config file lookup.
	ConfigFile string
	// DotEnv is the .env file to preload; "" means ".env", "-" disables it.
	DotEnv string
	// Flags are bound on top of every other source.
	Flags *pflag.FlagSet
}

// flagKeys maps cobra flag names to config keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"dry-run":         "monitor.dry_run",
	"snapshot-source": "monitor.snapshot_source",
	"store-driver":    "store.driver",
	"store-dsn":       "store.dsn",
	"http-addr":       "server.addr",
}

// Load reads configuration. Precedence: flags, environment, config file,
// defaults. A .env file is loaded into the process environment first without
// overriding variables that are already set.
func Load(opts Options) (*Config, error) {
	if opts.DotEnv != "-" {
		path := opts.DotEnv
		if path == "" {
			path = ".env"
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("taskmonitor")
		v.AddConfigPath(".")
	}
	file := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if file, err = filepath.Abs(v.ConfigFileUsed()); err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v.SetEnvPrefix("TASKMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"notion.token":               EnvNotionToken,
		"notion.task_database_id":    EnvTaskDatabaseID,
		"notion.history_database_id": EnvHistoryDatabaseID,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	// AutomaticEnv only reaches keys viper already knows about.
	for _, key := range unsetKeys {
		env := EnvName(key)
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cfg.File = file
	return &cfg, nil
}

// EnvName returns the TASKMONITOR_* variable for a config key.
func EnvName(key string) string {
	return "TASKMONITOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ChangedFlagEnv returns a TASKMONITOR_* assignment for every config-bound
// flag set on the command line, so a child process resolves the same values.
func ChangedFlagEnv(flags *pflag.FlagSet) map[string]string {
	out := map[string]string{}
	if flags == nil {
		return out
	}
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			out[EnvName(key)] = f.Value.String()
		}
	}
	return out
}

// unsetKeys have no default. Lists are comma separated in the environment.
var unsetKeys = []string{
	"job.workdir",
	"job.runtime.command",
	"job.runtime.version",
	"job.runtime.version_args",
	"job.script.command",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("notion.status_property", "Status")
	v.SetDefault("notion.max_retries", 3)
	v.SetDefault("notion.backoff", 500*time.Millisecond)
	v.SetDefault("notion.page_size", 100)
	v.SetDefault("notion.timeout", 30*time.Second)

	v.SetDefault("monitor.snapshot_source", "notion")
	v.SetDefault("monitor.dry_run", false)

	v.SetDefault("job.name", "notion-task-monitor")
	v.SetDefault("job.schedule", "*/15 * * * *")
	v.SetDefault("job.timezone", "UTC")
	v.SetDefault("job.timeout", 360*time.Minute)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")

	v.SetDefault("server.addr", "")
	v.SetDefault("notify.webhook_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Monitor.SnapshotSource == "sql" && cfg.Store.DSN == "" {
		return errors.New("invalid config: monitor.snapshot_source=sql requires store.dsn")
	}
	if _, err := time.LoadLocation(cfg.Job.Timezone); err != nil {
		return fmt.Errorf("invalid config: job.timezone: %w", err)
	}
	return nil
}

// RequireEnv reports which of NOTION_TOKEN, TASK_DATABASE_ID and
// HISTORY_DATABASE_ID are absent from env or blank.
func RequireEnv(env map[string]string) error {
	var missing []string
	for _, name := range []string{EnvHistoryDatabaseID, EnvNotionToken, EnvTaskDatabaseID} {
		if strings.TrimSpace(env[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Notion.Token != "" {
		c.Notion.Token = "****"
	}
	if c.Store.DSN != "" && strings.Contains(c.Store.DSN, "@") {
		c.Store.DSN = "****" + c.Store.DSN[strings.LastIndex(c.Store.DSN, "@"):]
	}
	return c
}
