// Package worker launches isolated scan worker processes and tracks their handles.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	tslog "github.com/target/tenantscan/internal/log"
)

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "_worker"

const defaultWaitDelay = 5 * time.Second

// ErrAlreadyLaunched is returned when a live handle already exists for the job.
var ErrAlreadyLaunched = errors.New("worker already launched for job")

// Options configures a Launcher.
type Options struct {
	// Executable defaults to the running binary.
	Executable string
	// Args defaults to the hidden worker subcommand.
	Args []string
	// Env defaults to the parent environment.
	Env []string
	// WaitDelay bounds how long output is still read after the worker exits.
	WaitDelay time.Duration
	Logger    *slog.Logger
}

// handle is one launched worker. done is closed once the process is reaped by the OS.
type handle struct {
	jobID   string
	pid     int
	started time.Time
	done    chan struct{}
	err     error
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Launcher starts worker processes and keeps a registry of their handles keyed by job id.
type Launcher struct {
	exe       string
	args      []string
	env       []string
	waitDelay time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

var _ core.WorkerLauncher = (*Launcher)(nil)

// NewLauncher creates a Launcher.
func NewLauncher(opts Options) (*Launcher, error) {
	exe := opts.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker executable: %w", err)
		}
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{WorkerCommand}
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	waitDelay := opts.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}
	return &Launcher{
		exe:       exe,
		args:      append([]string(nil), args...),
		env:       append([]string(nil), env...),
		waitDelay: waitDelay,
		logger:    logger.With("component", "worker_launcher"),
		handles:   make(map[string]*handle),
	}, nil
}

// Launch starts a worker for bundle. The bundle travels over stdin only, never argv.
// The worker is not bound to ctx: it outlives the submitting request.
func (l *Launcher) Launch(ctx context.Context, bundle model.WorkerBundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode worker bundle: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[bundle.JobID]; ok && !h.exited() {
		return fmt.Errorf("%w: %s", ErrAlreadyLaunched, bundle.JobID)
	}

	//nolint:gosec // G204: the executable is this binary, arguments are fixed
	cmd := exec.Command(l.exe, l.args...)
	cmd.Env = l.env
	cmd.Stdin = bytes.NewReader(payload)
	cmd.SysProcAttr = sysProcAttr()

	jobLogger := l.logger.With("job_id", bundle.JobID)
	stdout := tslog.NewLineWriter(0, forwardTo(jobLogger, "stdout"))
	stderr := tslog.NewLineWriter(0, forwardTo(jobLogger, "stderr"))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// exec owns the copy; after the worker exits, descendants holding its
	// output get WaitDelay before the pipes are closed under them.
	cmd.WaitDelay = l.waitDelay

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	h := &handle{
		jobID:   bundle.JobID,
		pid:     cmd.Process.Pid,
		started: time.Now().UTC(),
		done:    make(chan struct{}),
	}
	l.handles[bundle.JobID] = h

	logger := jobLogger.With("pid", h.pid)
	go l.supervise(cmd, h, logger, stdout, stderr)

	logger.InfoContext(ctx, "worker launched")
	return nil
}

// forwardTo relays one output stream into the structured log, line by line.
func forwardTo(logger *slog.Logger, stream string) func(string) {
	return func(line string) {
		logger.Info("worker output", "stream", stream, "line", line)
	}
}

// supervise reaps the OS process as soon as it exits. The handle itself stays
// registered until Reap or ReapExited releases it.
func (l *Launcher) supervise(cmd *exec.Cmd, h *handle, logger *slog.Logger, outputs ...*tslog.LineWriter) {
	err := cmd.Wait()
	for _, w := range outputs {
		w.Flush()
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		logger.Warn("worker descendants kept its output open after exit")
		err = nil
	}
	h.err = err
	close(h.done)

	elapsed := time.Since(h.started)
	if err != nil {
		logger.Warn("worker exited with error", "error", err, "elapsed", elapsed)
		return
	}
	logger.Info("worker exited", "elapsed", elapsed)
}

// Reap releases the handle for jobID when its process has already exited.
// A still-running worker keeps its handle for a later ReapExited sweep.
func (l *Launcher) Reap(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[jobID]
	if !ok || !h.exited() {
		return false
	}
	delete(l.handles, jobID)
	return true
}

// ReapExited releases every handle whose process has exited.
func (l *Launcher) ReapExited() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, h := range l.handles {
		if h.exited() {
			delete(l.handles, id)
			n++
		}
	}
	if n > 0 {
		l.logger.Debug("reaped exited workers", "count", n)
	}
	return n
}

// Running reports the number of tracked workers that have not exited yet.
func (l *Launcher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, h := range l.handles {
		if !h.exited() {
			n++
		}
	}
	return n
}
