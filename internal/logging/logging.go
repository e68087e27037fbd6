// Package logging builds the charmbracelet logger used across taskmonitor.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w at the given level and format
// (text, json or logfmt).
func New(w io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "taskmonitor",
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
	}), nil
}

// Discard is a logger for tests and for callers that pass nil.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// CronLogger adapts a charmbracelet logger to cron.Logger.
type CronLogger struct {
	L *log.Logger
}

// Info logs routine scheduler activity at debug level; cron is chatty.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug(msg, keysAndValues...)
}

// Error logs scheduler failures.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error(msg, append(keysAndValues, "err", err)...)
}
