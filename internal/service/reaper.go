package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	obserrors "github.com/target/tenantscan/internal/observability/errors"
	"github.com/target/tenantscan/internal/observability/metrics"
	"github.com/target/tenantscan/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required
	Config  config.ReaperConfig
	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// ReaperService enforces the job lifecycle deadlines on every tick:
// running jobs past RunningMaxAge are failed, and completed or failed
// jobs nobody polled are expired. Rows are archived into the completion
// history before they change. Worker processes are never signalled.
type ReaperService struct {
	repo     core.ReaperRepository
	config   config.ReaperConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	recorder *metrics.Recorder
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"running_max_age", opts.Config.RunningMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:     opts.Repo,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		recorder: metrics.NewRecorder(opts.Metrics),
	}, nil
}

// Run sweeps once after a short jitter, then on every interval until ctx ends.
// Cancellation returns nil; a deadline returns ctx.Err().
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	s.sleepJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx, "initial cleanup")
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx, "cleanup")
		}
	}
}

// sweep runs one cleanup pass. Failures are logged and retried next tick.
func (s *ReaperService) sweep(ctx context.Context, label string) {
	err := s.runCleanup(ctx)
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

// sleepJitter waits up to a tenth of the interval so replicas started
// together do not contend for the reaper lock on the same tick.
func (s *ReaperService) sleepJitter(ctx context.Context) {
	bound := int64(s.config.Interval / 10)
	if bound <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(bound))) // #nosec G115 - bounded by int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// reapStep is one lifecycle rule. batch handles at most BatchSize rows per call.
type reapStep struct {
	operation string
	label     string
	maxAge    time.Duration
	batch     func(context.Context) (int64, error)
	reaped    func(n int64) // optional, called with the rows the step moved to a terminal state
}

type stepResult struct {
	operation string
	count     int64
	err       error // nil when the step only stopped for cancellation
}

func (s *ReaperService) steps() []reapStep {
	cfg := s.config
	expire := func(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: cfg.BatchSize,
			})
		}
	}
	return []reapStep{
		{
			operation: "fail_running",
			label:     "fail stale running jobs",
			maxAge:    cfg.RunningMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.FailStaleRunningJobs(ctx, core.FailStaleParams{
					MaxAge:    cfg.RunningMaxAge,
					BatchSize: cfg.BatchSize,
					Message:   model.SanitizeError(StaleMessage(cfg.RunningMaxAge)),
				})
			},
			reaped: s.recorder.Reaped,
		},
		{
			operation: "delete_completed",
			label:     "delete old completed jobs",
			maxAge:    cfg.CompletedMaxAge,
			batch:     expire(model.JobStatusCompleted, cfg.CompletedMaxAge),
		},
		{
			operation: "delete_failed",
			label:     "delete old failed jobs",
			maxAge:    cfg.FailedMaxAge,
			batch:     expire(model.JobStatusFailed, cfg.FailedMaxAge),
		},
	}
}

// StaleMessage is the error recorded on a running job that outlived maxAge.
func StaleMessage(maxAge time.Duration) string {
	return fmt.Sprintf("scan timed out after %s without reporting a result", maxAge)
}

// runCleanup applies every step even when an earlier one fails.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	var (
		results      []stepResult
		errs         []error
		onlyCanceled = true
	)

	for _, step := range s.steps() {
		count, err := s.drain(ctx, step)
		results = append(results, stepResult{
			operation: step.operation,
			count:     count,
			err:       suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			onlyCanceled = onlyCanceled && isContextCancellation(err)
		}
	}

	s.recordCleanup(results, time.Since(start))

	if len(errs) == 0 {
		return nil
	}
	if onlyCanceled {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
}

// drain repeats step.batch until a batch comes back empty.
func (s *ReaperService) drain(ctx context.Context, step reapStep) (int64, error) {
	var total int64
	for {
		n, err := step.batch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if step.reaped != nil {
			step.reaped(n)
		}
		if n == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, step.label,
			"operation", step.operation,
			"count", total,
			"max_age", step.maxAge,
		)
	}
	return total, nil
}

func (s *ReaperService) recordCleanup(results []stepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		total += r.count
		if firstErr == nil {
			firstErr = r.err
		}
	}

	tags := resultTags(total, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		opTags := resultTags(r.count, r.err)
		opTags["operation"] = r.operation
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if r.err == nil && r.count > 0 {
			s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(opTags))
		}
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// resultTags tags an outcome as error, noop (nothing touched) or success.
func resultTags(count int64, err error) map[string]string {
	switch {
	case err != nil:
		tags := map[string]string{"result": metrics.ResultError}
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
		return tags
	case count == 0:
		return map[string]string{"result": metrics.ResultNoop}
	default:
		return map[string]string{"result": metrics.ResultSuccess}
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
