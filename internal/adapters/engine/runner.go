// Package engine runs the external test-execution engine as an opaque subprocess.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	tslog "github.com/target/tenantscan/internal/log"
)

// Environment variables handed to the engine. Session tokens travel only this way.
const (
	EnvTenantID             = "SCAN_TENANT_ID"
	EnvJobID                = "SCAN_JOB_ID"
	EnvOutputPath           = "SCAN_OUTPUT_PATH"
	EnvTestsPath            = "SCAN_TESTS_PATH"
	EnvSuites               = "SCAN_SUITES"
	EnvTags                 = "SCAN_TAGS"
	EnvExcludeTags          = "SCAN_EXCLUDE_TAGS"
	EnvSeverity             = "SCAN_SEVERITY"
	EnvDirectoryToken       = "SCAN_DIRECTORY_TOKEN"
	EnvMailToken            = "SCAN_MAIL_TOKEN"
	EnvComplianceToken      = "SCAN_COMPLIANCE_TOKEN"
	EnvComplianceDomain     = "SCAN_COMPLIANCE_DOMAIN"
	EnvCollabDirectoryToken = "SCAN_COLLAB_DIRECTORY_TOKEN"
	EnvCollabToken          = "SCAN_COLLAB_TOKEN"
	EnvCloudToken           = "SCAN_CLOUD_TOKEN"
)

// Tags excluded unless the request opts in.
const (
	TagLongRunning = "LongRunning"
	TagPreview     = "Preview"
)

const (
	defaultTimeout   = 25 * time.Minute
	defaultWaitDelay = 5 * time.Second
	stderrTailLines  = 5
	outputFileName   = "result.json"
)

// ErrTimeout is returned when the engine does not finish within the configured timeout.
var ErrTimeout = errors.New("engine timed out")

// Config configures the engine subprocess.
type Config struct {
	Command   string
	Args      []string
	TestsRoot string
	Timeout   time.Duration
	// WaitDelay bounds how long output is still read after the engine exits or is killed.
	WaitDelay time.Duration
	// Env is the base environment. Nil means the worker's own environment.
	Env []string
}

// Runner executes one engine run per call.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

var _ core.ScanEngine = (*Runner)(nil)

// NewRunner creates a Runner.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("engine command is required")
	}
	if strings.TrimSpace(cfg.TestsRoot) == "" {
		return nil, errors.New("engine tests root is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger.With("component", "engine")}, nil
}

// SelectionPath returns the directory the engine should discover tests under.
// Exactly one suite narrows the selection to that suite's directory.
func SelectionPath(root string, suites []string) string {
	if len(suites) == 1 {
		return filepath.Join(root, suites[0])
	}
	return root
}

// ExcludeTags returns the tags excluded from the run unless explicitly included.
func ExcludeTags(includeLongRunning, includePreview bool) []string {
	var out []string
	if !includeLongRunning {
		out = append(out, TagLongRunning)
	}
	if !includePreview {
		out = append(out, TagPreview)
	}
	return out
}

// Run starts the engine, waits for it and returns the document it wrote to SCAN_OUTPUT_PATH.
// A document written before a non-zero exit is still returned, since engines commonly exit
// with the number of failed checks. A missing document yields empty output.
func (r *Runner) Run(ctx context.Context, req core.EngineRequest) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "tenantscan-engine-*")
	if err != nil {
		return nil, fmt.Errorf("create engine work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()
	outputPath := filepath.Join(workDir, outputFileName)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	logger := r.logger.With("job_id", req.JobID)
	tail := newLineTail(stderrTailLines)
	stdout := tslog.NewLineWriter(0, func(line string) { logger.DebugContext(ctx, "engine output", "line", line) })
	stderr := tslog.NewLineWriter(0, func(line string) {
		tail.add(line)
		logger.WarnContext(ctx, "engine stderr", "line", line)
	})

	//nolint:gosec // G204: command comes from operator configuration
	cmd := exec.CommandContext(runCtx, r.cfg.Command, r.cfg.Args...)
	cmd.Env = r.environ(req, outputPath)
	cmd.Dir = workDir
	cmd.SysProcAttr = sysProcAttr()
	// exec owns the copy, so WaitDelay bounds how long descendants can hold the pipes.
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.cfg.WaitDelay

	var killed atomic.Bool
	cmd.Cancel = func() error {
		killed.Store(true)
		return killGroup(cmd.Process)
	}

	started := time.Now()
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	logger.InfoContext(ctx, "engine started",
		"pid", cmd.Process.Pid,
		"tests_path", SelectionPath(r.cfg.TestsRoot, req.Suites),
		"severity", req.Severity,
	)

	waitErr := cmd.Wait()
	elapsed := time.Since(started)
	// Stray descendants die with the run.
	_ = killGroup(cmd.Process)
	stdout.Flush()
	stderr.Flush()

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.WarnContext(ctx, "engine descendants kept its output open after exit", "elapsed", elapsed)
		waitErr = nil
	}
	if killed.Load() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout)
	}

	doc, readErr := os.ReadFile(outputPath)
	switch {
	case readErr == nil && len(doc) > 0:
		if waitErr != nil {
			logger.WarnContext(ctx, "engine exited non-zero after writing output", "error", waitErr, "elapsed", elapsed)
		} else {
			logger.InfoContext(ctx, "engine finished", "elapsed", elapsed, "output_bytes", len(doc))
		}
		return doc, nil
	case waitErr != nil:
		return nil, fmt.Errorf("engine failed: %w%s", waitErr, tail.suffix())
	case readErr != nil && !errors.Is(readErr, os.ErrNotExist):
		return nil, fmt.Errorf("read engine output: %w", readErr)
	default:
		logger.WarnContext(ctx, "engine produced no output document", "elapsed", elapsed)
		return nil, nil
	}
}

func (r *Runner) environ(req core.EngineRequest, outputPath string) []string {
	base := r.cfg.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+16)
	for _, kv := range base {
		// never inherit a stale scan variable from the parent
		if strings.HasPrefix(kv, "SCAN_") {
			continue
		}
		env = append(env, kv)
	}

	severities := make([]string, 0, len(req.Severity))
	for _, s := range req.Severity {
		severities = append(severities, string(s))
	}
	env = append(env,
		EnvTenantID+"="+req.TenantID,
		EnvJobID+"="+req.JobID,
		EnvOutputPath+"="+outputPath,
		EnvTestsPath+"="+SelectionPath(r.cfg.TestsRoot, req.Suites),
		EnvSuites+"="+strings.Join(req.Suites, ","),
		EnvTags+"="+strings.Join(req.Tags, ","),
		EnvExcludeTags+"="+strings.Join(ExcludeTags(req.IncludeLongRunning, req.IncludePreview), ","),
		EnvSeverity+"="+strings.Join(severities, ","),
	)

	s := req.Sessions
	if s == nil {
		return env
	}
	for _, kv := range []struct {
		key string
		val model.Secret
	}{
		{EnvDirectoryToken, s.Directory},
		{EnvMailToken, s.Mail},
		{EnvComplianceToken, s.Compliance},
		{EnvCollabDirectoryToken, s.CollaborationDirectory},
		{EnvCollabToken, s.Collaboration},
		{EnvCloudToken, s.Cloud},
	} {
		if kv.val != "" {
			env = append(env, kv.key+"="+kv.val.Reveal())
		}
	}
	if s.ComplianceDomain != "" {
		env = append(env, EnvComplianceDomain+"="+s.ComplianceDomain)
	}
	return env
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail { return &lineTail{n: n} }

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) suffix() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return ""
	}
	return ": " + strings.Join(t.lines, " | ")
}
