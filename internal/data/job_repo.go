// Package data implements the durable job store on top of database/sql.
package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = apperrors.NotFound("job not found")
	// ErrTenantBusy is returned when the tenant already has the maximum number of running jobs.
	ErrTenantBusy = apperrors.Conflict("tenant already has a running scan")
	// ErrJobNotTerminal is returned when a read-archive-delete targets a running job.
	ErrJobNotTerminal = apperrors.Conflict("job is still running")
)

const defaultTenantConcurrency = 1

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Dialect           Dialect
	TenantConcurrency int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	dialect      Dialect
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	if cfg.TenantConcurrency < 1 {
		cfg.TenantConcurrency = defaultTenantConcurrency
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectSQLite
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		dialect:      dialect,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

// q rebinds a query for the repository's dialect.
func (r *JobRepo) q(query string) string {
	return r.dialect.Rebind(query)
}

const jobColumns = `
  id,
  tenant_id,
  status,
  suites,
  severity_filter,
  result,
  error,
  duration_ms,
  created_at,
  updated_at
`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// jobRowData holds the raw column values of a jobs row before conversion.
type jobRowData struct {
	id             string
	tenantID       string
	status         string
	suites         string
	severityFilter string
	result         sql.NullString
	errMsg         sql.NullString
	durationMs     sql.NullInt64
	createdAt      string
	updatedAt      string
}

func (d *jobRowData) scanInto(s rowScanner) error {
	return s.Scan(
		&d.id,
		&d.tenantID,
		&d.status,
		&d.suites,
		&d.severityFilter,
		&d.result,
		&d.errMsg,
		&d.durationMs,
		&d.createdAt,
		&d.updatedAt,
	)
}

func (d *jobRowData) toJob() (*model.Job, error) {
	job := &model.Job{
		ID:       d.id,
		TenantID: d.tenantID,
		Status:   model.JobStatus(d.status),
	}
	if err := json.Unmarshal([]byte(d.suites), &job.Suites); err != nil {
		return nil, fmt.Errorf("decode suites for job %s: %w", d.id, err)
	}
	if err := json.Unmarshal([]byte(d.severityFilter), &job.SeverityFilter); err != nil {
		return nil, fmt.Errorf("decode severity filter for job %s: %w", d.id, err)
	}
	if d.result.Valid {
		summary, err := model.ParseJobSummary([]byte(d.result.String))
		if err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", d.id, err)
		}
		job.Result = summary
	}
	if d.errMsg.Valid {
		msg := d.errMsg.String
		job.Error = &msg
	}
	if d.durationMs.Valid {
		ms := d.durationMs.Int64
		job.DurationMs = &ms
	}

	var err error
	if job.CreatedAt, err = parseDBTime(d.createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at for job %s: %w", d.id, err)
	}
	if job.UpdatedAt, err = parseDBTime(d.updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at for job %s: %w", d.id, err)
	}
	return job, nil
}

func scanJob(s rowScanner) (*model.Job, error) {
	var d jobRowData
	if err := d.scanInto(s); err != nil {
		return nil, err
	}
	return d.toJob()
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nonNil keeps stored JSON arrays as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
