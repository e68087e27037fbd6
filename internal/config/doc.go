// Package config defines the configuration structure for taskmonitor.
//
// Values come from (highest first) command-line flags, environment variables
// (NOTION_TOKEN, TASK_DATABASE_ID, HISTORY_DATABASE_ID and TASKMONITOR_*),
// the taskmonitor.yaml config file and built-in defaults. Every scalar and
// list key has a TASKMONITOR_* variable, e.g. TASKMONITOR_JOB_SCRIPT_COMMAND
// with comma separated list items; job.setup can only come from the file.
// A .env file in the working directory is read first and never overrides
// real environment.
package config
