package transcoder

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

// Command is one subprocess invocation.
type Command struct {
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes subprocesses. A non-nil error means the process could not
// start or exited non-zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec and tracks them so Cleanup can kill
// whatever is still running at shutdown.
type ExecRunner struct {
	processMu sync.Mutex
	processes map[*exec.Cmd]string
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{processes: make(map[*exec.Cmd]string)}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	logging.Debug("exec: %s", c)
	if err := cmd.Start(); err != nil {
		return err
	}

	r.processMu.Lock()
	r.processes[cmd] = c.Name
	r.processMu.Unlock()
	metrics.TranscodeProcessesRunning.Inc()

	defer func() {
		r.processMu.Lock()
		delete(r.processes, cmd)
		r.processMu.Unlock()
		metrics.TranscodeProcessesRunning.Dec()
	}()

	return cmd.Wait()
}

// Cleanup stops all active subprocesses.
func (r *ExecRunner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for cmd, name := range r.processes {
		if cmd.Process != nil {
			logging.Info("Killing %s process (pid %d)", name, cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill %s process: %v", name, err)
			}
		}
	}
}
