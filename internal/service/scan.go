package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/normalize"
	"github.com/target/tenantscan/internal/observability/metrics"
	"github.com/target/tenantscan/internal/observability/notify"
)

// terminalWriteTimeout bounds the final store write, which must land even after ctx is done.
const terminalWriteTimeout = 30 * time.Second

// ResultNormalizer flattens the engine's output document.
type ResultNormalizer interface {
	Normalize(raw []byte, opts normalize.Options) (*normalize.Result, error)
}

// ScanServiceOptions groups dependencies for ScanService.
type ScanServiceOptions struct {
	Repo        core.JobRepository      // Required: job repository
	Connections core.ConnectionAcquirer // Required: per-service session acquisition
	Engine      core.ScanEngine         // Required: external test engine
	Normalizer  ResultNormalizer        // Required: engine output normalizer
	Notifier    FailureNotifier         // Optional: failed-scan notifications
	Metrics     *metrics.Recorder       // Optional: terminal transition metrics
	Logger      *slog.Logger            // Optional: structured logger
	Now         func() time.Time        // Optional: clock, defaults to time.Now
}

// ScanService executes one scan inside a worker process and records its terminal state.
type ScanService struct {
	repo        core.JobRepository
	connections core.ConnectionAcquirer
	engine      core.ScanEngine
	normalizer  ResultNormalizer
	notifier    FailureNotifier
	metrics     *metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewScanService constructs a new ScanService.
func NewScanService(opts ScanServiceOptions) (*ScanService, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Connections == nil:
		return nil, errors.New("ConnectionAcquirer is required")
	case opts.Engine == nil:
		return nil, errors.New("ScanEngine is required")
	case opts.Normalizer == nil:
		return nil, errors.New("ResultNormalizer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ScanService{
		repo:        opts.Repo,
		connections: opts.Connections,
		engine:      opts.Engine,
		normalizer:  opts.Normalizer,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "scan_service"),
		now:         now,
	}, nil
}

// Run acquires connections, runs the engine, normalizes its output and records exactly one
// terminal state for the job. The returned error is the scan failure, if any.
func (s *ScanService) Run(ctx context.Context, bundle model.WorkerBundle) (err error) {
	if err = bundle.Validate(); err != nil {
		return err
	}
	started := s.now()
	logger := s.logger.With("job_id", bundle.JobID)

	var summary *model.JobSummary
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "scan panicked", "panic", r)
			summary = nil
			err = fmt.Errorf("scan panicked: %v", r)
		}
		if finishErr := s.finish(ctx, &bundle, started, summary, err); finishErr != nil && err == nil {
			err = finishErr
		}
	}()

	summary, err = s.execute(ctx, bundle, started, logger)
	return err
}

func (s *ScanService) execute(
	ctx context.Context,
	bundle model.WorkerBundle,
	started time.Time,
	logger *slog.Logger,
) (*model.JobSummary, error) {
	sessions, diag, err := s.connections.Acquire(ctx, bundle.Credentials)
	if err != nil {
		logger.WarnContext(ctx, "connection acquisition failed", "error", err, "connections", diag)
		return nil, err
	}

	raw, err := s.engine.Run(ctx, core.EngineRequest{
		JobID:              bundle.JobID,
		TenantID:           bundle.TenantID,
		Suites:             bundle.Suites,
		Severity:           bundle.Severity,
		Tags:               bundle.Tags,
		IncludeLongRunning: bundle.IncludeLongRunning,
		IncludePreview:     bundle.IncludePreview,
		Sessions:           sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("engine run: %w", err)
	}

	result, err := s.normalizer.Normalize(raw, normalize.Options{
		Filter: model.NewSeverityFilter(bundle.Severity),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := model.NewJobSummary(model.SummaryParams{
		Tests:          result.Tests,
		DurationMs:     now.Sub(started).Milliseconds(),
		Timestamp:      now,
		SuitesRun:      bundle.Suites,
		SeverityFilter: bundle.Severity,
		Connections:    diag,
	})
	logger.InfoContext(ctx, "scan finished",
		"total", summary.TotalCount,
		"passed", summary.PassedCount,
		"failed", summary.FailedCount,
		"skipped", summary.SkippedCount,
	)
	return summary, nil
}

// finish is the single terminal writer. A job is failed only here; its error is sanitized.
// A write rejected by the store means another writer (the reaper) got there first.
func (s *ScanService) finish(
	ctx context.Context,
	bundle *model.WorkerBundle,
	started time.Time,
	summary *model.JobSummary,
	runErr error,
) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	jobID := bundle.JobID
	duration := max(s.now().Sub(started).Milliseconds(), 0)
	var (
		written bool
		err     error
		status  = model.JobStatusCompleted
		message string
	)
	if runErr == nil && summary != nil {
		written, err = s.repo.Complete(wctx, core.CompleteJobParams{ID: jobID, Result: summary, DurationMs: duration})
	} else {
		if runErr == nil {
			runErr = errors.New("scan produced no result")
		}
		status = model.JobStatusFailed
		message = model.SanitizeError(runErr.Error())
		written, err = s.repo.Fail(wctx, core.FailJobParams{
			ID:         jobID,
			Error:      message,
			DurationMs: duration,
		})
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "terminal write failed", "job_id", jobID, "status", status, "error", err)
		return fmt.Errorf("record %s state: %w", status, err)
	}
	if !written {
		s.logger.WarnContext(ctx, "terminal write ignored, job no longer running", "job_id", jobID, "status", status)
		return nil
	}
	s.logger.InfoContext(ctx, "terminal state recorded", "job_id", jobID, "status", status, "duration_ms", duration)
	s.metrics.Finished(string(status), time.Duration(duration)*time.Millisecond, runErr)
	if status == model.JobStatusFailed {
		notifyFailure(wctx, s.notifier, bundle, notify.StageScan, message, runErr)
	}
	return nil
}
