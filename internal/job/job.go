// Package job is the invocation wrapper: it prepares the environment, runs
// the setup steps and then spawns the monitoring script exactly once.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"notion-task-monitor/internal/config"
	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/provision"
)

// Phases a job can fail in.
const (
	PhaseSetup  = "setup"
	PhaseScript = "script"
)

var (
	ErrSetupFailed  = errors.New("setup failed")
	ErrScriptFailed = errors.New("script failed")
)

// ExitError carries the exit code of a failed job up to main.
type ExitError struct {
	Code  int
	Phase string
	Err   error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s phase exited with code %d: %v", e.Phase, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Step is one setup shell snippet.
type Step struct {
	Name string
	Run  string
}

// Runner runs one job. Every call to Run is independent, so a Runner may be
// shared by overlapping runs.
type Runner struct {
	Probe   *provision.Probe
	Steps   []Step
	Script  []string
	Env     map[string]string
	WorkDir string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *log.Logger
}

// New builds a Runner from the job config and the script environment.
// An empty script command resolves to this binary's "run" subcommand.
func New(cfg config.JobConfig, env map[string]string, logger *log.Logger) (*Runner, error) {
	script := cfg.Script.Command
	if len(script) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve script: %w", err)
		}
		script = []string{self, "run"}
	}
	r := &Runner{
		Script:  script,
		Env:     env,
		WorkDir: cfg.WorkDir,
		Timeout: cfg.Timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logging.OrDiscard(logger),
	}
	if cfg.Runtime.Command != "" {
		r.Probe = &provision.Probe{
			Command:     cfg.Runtime.Command,
			MinVersion:  cfg.Runtime.Version,
			VersionArgs: cfg.Runtime.VersionArgs,
		}
	}
	for _, s := range cfg.Setup {
		r.Steps = append(r.Steps, Step{Name: s.Name, Run: s.Run})
	}
	return r, nil
}

// Run executes the job. It returns nil on success and an *ExitError
// otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	logger := logging.OrDiscard(r.Logger)

	if err := r.setup(ctx, logger); err != nil {
		return err
	}

	if err := config.RequireEnv(r.Env); err != nil {
		return &ExitError{Code: 1, Phase: PhaseSetup, Err: fmt.Errorf("%w: %w", ErrSetupFailed, err)}
	}

	start := time.Now()
	logger.Info("starting script", "command", strings.Join(r.Script, " "))
	code, err := r.script(ctx)
	if err != nil {
		logger.Error("script failed", "code", code, "elapsed", time.Since(start).Round(time.Millisecond), "err", err)
		return &ExitError{Code: code, Phase: PhaseScript, Err: fmt.Errorf("%w: %w", ErrScriptFailed, err)}
	}
	logger.Info("script finished", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (r *Runner) setup(ctx context.Context, logger *log.Logger) error {
	if r.Probe != nil {
		res, err := r.Probe.Check(ctx)
		if err != nil {
			return &ExitError{Code: 1, Phase: PhaseSetup, Err: fmt.Errorf("%w: %w", ErrSetupFailed, err)}
		}
		logger.Info("runtime ready", "command", r.Probe.Command, "version", res.Version, "path", res.Path)
	}
	for i, step := range r.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		logger.Info("setup step", "name", name)
		if code, err := r.shell(ctx, name, step.Run); err != nil {
			return &ExitError{Code: code, Phase: PhaseSetup, Err: fmt.Errorf("%w: %s: %w", ErrSetupFailed, name, err)}
		}
	}
	return nil
}

// shell runs src with the inherited environment. The secrets are only handed
// to the script.
func (r *Runner) shell(ctx context.Context, name, src string) (int, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(src), name)
	if err != nil {
		return 1, err
	}
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.StdIO(nil, r.stdout(), r.stderr()),
	}
	if r.WorkDir != "" {
		opts = append(opts, interp.Dir(r.WorkDir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return 1, err
	}
	err = runner.Run(ctx, file)
	if err == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if errors.As(err, &status) && status != 0 {
		return int(status), err
	}
	return 1, err
}

func (r *Runner) script(ctx context.Context) (int, error) {
	if len(r.Script) == 0 {
		return 1, errors.New("empty script command")
	}
	cmd := exec.CommandContext(ctx, r.Script[0], r.Script[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Env = append(os.Environ(), environ(r.Env)...)
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return 1, fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode(), err
	}
	return 1, err
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return io.Discard
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return io.Discard
	}
	return r.Stderr
}

// environ renders env as sorted KEY=value pairs.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Code returns the exit code for err: 0 for nil, the carried code for an
// *ExitError and 1 for anything else.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Phase returns the phase err failed in, or "" for nil and foreign errors.
func Phase(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Phase
	}
	return ""
}
