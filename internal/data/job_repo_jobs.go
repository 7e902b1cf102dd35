package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/data/pgxutil"
	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
)

// Advisory lock namespace for the per-tenant concurrency gate on postgres.
const advisoryLockTenantGateMajor int32 = 1001

const postgresLockTimeout = "5s"

var _ core.JobRepository = (*JobRepo)(nil)

// withTx runs fn in a write transaction. On sqlite the DSN carries _txlock=immediate,
// so the write lock is taken at BEGIN; on postgres lock waits are bounded.
func (r *JobRepo) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if r.dialect == DialectPostgres {
				if err := pgxutil.SetLocalLockTimeout(ctx, tx, postgresLockTimeout); err != nil {
					return err
				}
			}
			return fn(tx)
		},
	})
	return err
}

// Create inserts a running job after checking the tenant's running count in the same
// transaction. Returns ErrTenantBusy without creating state when the gate is closed.
func (r *JobRepo) Create(ctx context.Context, params core.CreateJobParams) (*model.Job, error) {
	suites, err := encodeJSON(nonNil(params.Suites))
	if err != nil {
		return nil, fmt.Errorf("encode suites: %w", err)
	}
	severity, err := encodeJSON(nonNil(params.SeverityFilter))
	if err != nil {
		return nil, fmt.Errorf("encode severity filter: %w", err)
	}

	now := r.timeProvider.Now()
	job := &model.Job{
		ID:             uuid.NewString(),
		TenantID:       params.TenantID,
		Status:         model.JobStatusRunning,
		Suites:         nonNil(params.Suites),
		SeverityFilter: nonNil(params.SeverityFilter),
		CreatedAt:      now.UTC().Truncate(time.Microsecond),
		UpdatedAt:      now.UTC().Truncate(time.Microsecond),
	}

	txErr := r.withTx(ctx, func(tx *sql.Tx) error {
		if r.dialect == DialectPostgres {
			if lockErr := pgxutil.AdvisoryXactLock(ctx, tx, advisoryLockTenantGateMajor, pgxutil.AdvisoryKey(params.TenantID)); lockErr != nil {
				return lockErr
			}
		}

		var running int
		if scanErr := tx.QueryRowContext(ctx,
			r.q(`SELECT COUNT(*) FROM jobs WHERE tenant_id = ? AND status = 'running'`),
			params.TenantID,
		).Scan(&running); scanErr != nil {
			return fmt.Errorf("count running jobs: %w", scanErr)
		}
		if running >= r.cfg.TenantConcurrency {
			return ErrTenantBusy
		}

		stamp := r.timeProvider.FormatForDB(now)
		_, execErr := tx.ExecContext(ctx, r.q(`
			INSERT INTO jobs (id, tenant_id, status, suites, severity_filter, created_at, updated_at)
			VALUES (?, ?, 'running', ?, ?, ?, ?)`),
			job.ID, job.TenantID, suites, severity, stamp, stamp,
		)
		if execErr != nil {
			return fmt.Errorf("insert job: %w", execErr)
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrTenantBusy) {
			return nil, ErrTenantBusy
		}
		return nil, apperrors.MapDBError(txErr)
	}

	return job, nil
}

// GetByID returns the job with the given id or ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// Complete stores the result document of a running job.
// Returns false when the job is no longer running or no longer exists.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	if params.Result == nil {
		return false, apperrors.Validation("result document is required")
	}
	doc, err := encodeJSON(params.Result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	return r.writeTerminal(ctx, r.q(`
		UPDATE jobs
		SET status = 'completed', result = ?, error = NULL, duration_ms = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`),
		doc, params.DurationMs, r.timeProvider.FormatForDB(r.timeProvider.Now()), params.ID,
	)
}

// Fail records the error of a running job.
// Returns false when the job is no longer running or no longer exists.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	return r.writeTerminal(ctx, r.q(`
		UPDATE jobs
		SET status = 'failed', result = NULL, error = ?, duration_ms = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`),
		params.Error, params.DurationMs, r.timeProvider.FormatForDB(r.timeProvider.Now()), params.ID,
	)
}

// forUpdate row-locks selected jobs on postgres; sqlite already holds the database write lock.
func (r *JobRepo) forUpdate() string {
	if r.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (r *JobRepo) writeTerminal(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("write terminal state: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Delete removes a job row. Returns ErrJobNotFound if nothing was deleted.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, r.q(`DELETE FROM jobs WHERE id = ?`), id)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("delete job: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ArchiveCompletion appends a completion history row. A second archive of the same job is ignored.
func (r *JobRepo) ArchiveCompletion(ctx context.Context, params core.ArchiveParams) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		return r.archiveInTx(ctx, tx, params)
	})
	return apperrors.MapDBError(err)
}

func (r *JobRepo) archiveInTx(ctx context.Context, tx *sql.Tx, params core.ArchiveParams) error {
	if !params.Status.IsTerminal() {
		return apperrors.Validationf("cannot archive job in status %q", params.Status)
	}
	suites, err := encodeJSON(nonNil(params.Suites))
	if err != nil {
		return fmt.Errorf("encode suites: %w", err)
	}
	completedAt := params.CompletedAt
	if completedAt.IsZero() {
		completedAt = r.timeProvider.Now()
	}
	if _, err = tx.ExecContext(ctx, r.q(`
		INSERT INTO job_stats (job_id, status, duration_ms, suites, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING`),
		params.JobID, string(params.Status), params.DurationMs, suites, r.timeProvider.FormatForDB(completedAt),
	); err != nil {
		return fmt.Errorf("archive job %s: %w", params.JobID, err)
	}
	return nil
}

// TakeTerminal reads a terminal job, archives it into job_stats and deletes it, all in one
// transaction. Returns ErrJobNotFound for unknown ids and ErrJobNotTerminal for running jobs.
func (r *JobRepo) TakeTerminal(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, r.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`+r.forUpdate()), id)
		found, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		if scanErr != nil {
			return fmt.Errorf("read job: %w", scanErr)
		}
		if !found.Status.IsTerminal() {
			return ErrJobNotTerminal
		}

		if archiveErr := r.archiveInTx(ctx, tx, archiveParamsFor(found)); archiveErr != nil {
			return archiveErr
		}
		if _, delErr := tx.ExecContext(ctx, r.q(`DELETE FROM jobs WHERE id = ?`), id); delErr != nil {
			return fmt.Errorf("delete job: %w", delErr)
		}
		job = found
		return nil
	})
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrJobNotTerminal):
		return nil, err
	default:
		return nil, apperrors.MapDBError(err)
	}
}

// archiveParamsFor derives the history row for a terminal job.
func archiveParamsFor(job *model.Job) core.ArchiveParams {
	duration := job.UpdatedAt.Sub(job.CreatedAt).Milliseconds()
	if job.DurationMs != nil {
		duration = *job.DurationMs
	}
	return core.ArchiveParams{
		JobID:       job.ID,
		Status:      job.Status,
		DurationMs:  max(duration, 0),
		Suites:      job.Suites,
		CompletedAt: job.UpdatedAt,
	}
}

// Stats aggregates the append-only completion history.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var (
		stats model.JobStats
		last  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT
		  COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		  CAST(COALESCE(AVG(duration_ms), 0) AS DOUBLE PRECISION),
		  COALESCE(MIN(duration_ms), 0),
		  COALESCE(MAX(duration_ms), 0),
		  MAX(completed_at)
		FROM job_stats`,
	).Scan(
		&stats.CompletedCount,
		&stats.FailedCount,
		&stats.AvgDurationMs,
		&stats.MinDurationMs,
		&stats.MaxDurationMs,
		&last,
	)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("job stats: %w", err))
	}
	if last.Valid && strings.TrimSpace(last.String) != "" {
		t, parseErr := parseDBTime(last.String)
		if parseErr != nil {
			return nil, fmt.Errorf("decode last completed_at: %w", parseErr)
		}
		ts := model.NewTimestamp(t)
		stats.LastCompletedAt = &ts
	}
	return &stats, nil
}
