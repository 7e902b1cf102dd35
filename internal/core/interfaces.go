// Package core defines the ports between the tenantscan services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/tenantscan/internal/domain/model"
)

// CreateJobParams groups the inputs of JobRepository.Create.
type CreateJobParams struct {
	TenantID       string
	Suites         []string
	SeverityFilter []model.Severity
}

// CompleteJobParams groups the inputs of JobRepository.Complete.
type CompleteJobParams struct {
	ID         string
	Result     *model.JobSummary
	DurationMs int64
}

// FailJobParams groups the inputs of JobRepository.Fail.
type FailJobParams struct {
	ID         string
	Error      string
	DurationMs int64
}

// ArchiveParams describes one append-only completion history row.
type ArchiveParams struct {
	JobID       string
	Status      model.JobStatus
	DurationMs  int64
	Suites      []string
	CompletedAt time.Time
}

// JobRepository is the durable job store shared by the server and its workers.
type JobRepository interface {
	// Create inserts a running job after the per-tenant concurrency gate admits it.
	Create(ctx context.Context, params CreateJobParams) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Complete and Fail only transition running jobs; false means the write was a no-op.
	Complete(ctx context.Context, params CompleteJobParams) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (bool, error)
	Delete(ctx context.Context, id string) error
	ArchiveCompletion(ctx context.Context, params ArchiveParams) error
	// TakeTerminal reads, archives and deletes a terminal job in one transaction.
	TakeTerminal(ctx context.Context, id string) (*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// FailStaleParams groups parameters for FailStaleRunningJobs.
type FailStaleParams struct {
	MaxAge    time.Duration
	BatchSize int
	Message   string
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailStaleRunningJobs marks running jobs created before now-maxAge as failed.
	// Processes up to batchSize jobs per call and returns the number failed.
	FailStaleRunningJobs(ctx context.Context, params FailStaleParams) (int64, error)

	// DeleteOldJobs archives then deletes terminal jobs with the given status
	// whose last update is older than maxAge. Returns the number deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// WorkerLauncher starts and tracks isolated worker processes.
type WorkerLauncher interface {
	// Launch starts a worker for the bundle and returns once the process is running.
	Launch(ctx context.Context, bundle model.WorkerBundle) error
	// Reap releases the handle for jobID if its process has exited. It never blocks.
	Reap(jobID string) bool
	// ReapExited releases every handle whose process has exited and returns how many.
	ReapExited() int
	// Running reports the number of tracked workers whose process is still alive.
	Running() int
}

// ConnectionAcquirer resolves per-service sessions for one job.
type ConnectionAcquirer interface {
	Acquire(ctx context.Context, creds model.CredentialBundle) (*model.Sessions, model.ConnectionDiagnostics, error)
}

// EngineRequest is everything the test engine needs for one run.
type EngineRequest struct {
	JobID              string
	TenantID           string
	Suites             []string
	Severity           []model.Severity
	Tags               []string
	IncludeLongRunning bool
	IncludePreview     bool
	Sessions           *model.Sessions
}

// ScanEngine runs the external test-execution engine and returns its raw output document.
type ScanEngine interface {
	Run(ctx context.Context, req EngineRequest) ([]byte, error)
}
