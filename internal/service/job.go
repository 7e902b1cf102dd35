package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
	"github.com/target/tenantscan/internal/observability/metrics"
	"github.com/target/tenantscan/internal/observability/notify"
)

// launchFailedMessage is recorded on a job whose worker never started.
const launchFailedMessage = "worker failed to start"

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo     core.JobRepository  // Required: job repository
	Launcher core.WorkerLauncher // Required: worker process launcher
	Store    model.StoreLocator  // Required: how workers reach the job store
	Logger   *slog.Logger        // Optional: structured logger
	Metrics  *metrics.Recorder   // Optional: job metrics
	Notifier FailureNotifier     // Optional: failed-launch notifications
}

// JobService handles scan submission and polling.
//
// This service manages:
// - Admission through the per-tenant concurrency gate.
// - Launching one isolated worker per admitted job.
// - Handing each terminal result out exactly once.
type JobService struct {
	repo     core.JobRepository
	launcher core.WorkerLauncher
	store    model.StoreLocator
	logger   *slog.Logger
	metrics  *metrics.Recorder
	notifier FailureNotifier
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("WorkerLauncher is required")
	}
	if opts.Store.Driver == "" || opts.Store.DSN == "" {
		return nil, errors.New("store locator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		repo:     opts.Repo,
		launcher: opts.Launcher,
		store:    opts.Store,
		logger:   logger.With("component", "job_service"),
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}, nil
}

// Submit admits a scan and launches its worker. It returns as soon as the worker is running.
// A tenant at its concurrency limit yields a conflict error.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	if req == nil {
		return nil, apperrors.Validation("submit request is required")
	}
	severities, err := req.Validate()
	if err != nil {
		s.metrics.Submitted(metrics.SubmitRejected, err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid scan request")
	}

	if n := s.launcher.ReapExited(); n > 0 {
		s.logger.DebugContext(ctx, "reaped exited workers before submission", "count", n)
	}

	creds := req.Credentials()
	job, err := s.repo.Create(ctx, core.CreateJobParams{
		TenantID:       creds.TenantID,
		Suites:         req.Suites,
		SeverityFilter: severities,
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			s.metrics.Submitted(metrics.SubmitRejected, err)
			s.logger.InfoContext(ctx, "scan rejected, tenant busy", "tenant_id", creds.TenantID)
			return nil, err
		}
		s.metrics.Submitted(metrics.SubmitError, err)
		return nil, fmt.Errorf("create job: %w", err)
	}

	bundle := model.WorkerBundle{
		JobID:              job.ID,
		TenantID:           job.TenantID,
		Suites:             job.Suites,
		Severity:           job.SeverityFilter,
		Tags:               req.Tags,
		IncludeLongRunning: req.IncludeLongRunning,
		IncludePreview:     req.IncludePreview,
		Credentials:        creds,
		Store:              s.store,
	}
	if err = s.launcher.Launch(ctx, bundle); err != nil {
		s.failLaunch(ctx, &bundle, err)
		s.metrics.Submitted(metrics.SubmitError, err)
		return nil, fmt.Errorf("launch worker: %w", err)
	}

	s.metrics.Submitted(metrics.SubmitAccepted, nil)
	s.metrics.Workers(s.launcher.Running())
	s.logger.InfoContext(ctx, "scan submitted", "job_id", job.ID, "request", req)

	return &model.SubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: model.NewTimestamp(job.CreatedAt),
	}, nil
}

// failLaunch releases the tenant at once instead of waiting for the reaper.
func (s *JobService) failLaunch(ctx context.Context, bundle *model.WorkerBundle, launchErr error) {
	s.logger.ErrorContext(ctx, "worker launch failed", "job_id", bundle.JobID, "error", launchErr)
	// The request context may already be gone; the write must still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	written, err := s.repo.Fail(wctx, core.FailJobParams{ID: bundle.JobID, Error: launchFailedMessage})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark unlaunched job as failed", "job_id", bundle.JobID, "error", err)
		return
	}
	if written {
		notifyFailure(wctx, s.notifier, bundle, notify.StageLaunch, launchFailedMessage, launchErr)
	}
}

// Poll returns the job's current view. A terminal job is handed out once: it is archived
// and removed in the same step, so the next poll for the id is not found.
func (s *JobService) Poll(ctx context.Context, id string) (*model.PollResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return model.NewPollResponse(job), nil
	}

	taken, err := s.repo.TakeTerminal(ctx, id)
	if err != nil {
		// A concurrent poll already took it.
		return nil, err
	}
	s.launcher.Reap(id)
	s.metrics.Workers(s.launcher.Running())

	var duration time.Duration
	if taken.DurationMs != nil {
		duration = time.Duration(*taken.DurationMs) * time.Millisecond
	}
	s.metrics.Terminal(metrics.TransitionCollect, string(taken.Status), duration)
	s.logger.InfoContext(ctx, "terminal result collected", "job_id", id, "status", taken.Status)

	return model.NewPollResponse(taken), nil
}

// Stats returns the aggregated completion history.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
