package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/data/pgxutil"
	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for tenantscan reaper operations.
const (
	advisoryLockReaperMajor       int32 = 1000
	advisoryLockReaperFailRunning int32 = 1 // minor key for FailStaleRunningJobs
	advisoryLockReaperDelete      int32 = 2 // minor key for DeleteOldJobs
)

const defaultStaleMessage = "scan timed out"

var _ core.ReaperRepository = (*JobRepo)(nil)

// tryReaperLock reports whether this instance owns the reaper step on postgres.
// sqlite serializes writers itself, so the step always proceeds there.
func (r *JobRepo) tryReaperLock(ctx context.Context, tx *sql.Tx, minor int32) (bool, error) {
	if r.dialect != DialectPostgres {
		return true, nil
	}
	return pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockReaperMajor, minor)
}

// FailStaleRunningJobs marks running jobs older than maxAge as failed and archives them.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of jobs marked as failed.
func (r *JobRepo) FailStaleRunningJobs(ctx context.Context, params core.FailStaleParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}
	msg := params.Message
	if msg == "" {
		msg = defaultStaleMessage
	}

	var failed int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := r.tryReaperLock(ctx, tx, advisoryLockReaperFailRunning)
		if err != nil || !locked {
			return err
		}

		now := r.timeProvider.Now()
		stale, err := r.selectJobs(ctx, tx, r.q(`
			SELECT `+jobColumns+` FROM jobs
			WHERE status = 'running' AND created_at < ?
			ORDER BY created_at
			LIMIT ?`+r.forUpdate()),
			r.timeProvider.FormatForDB(now.Add(-params.MaxAge)), params.BatchSize,
		)
		if err != nil {
			return err
		}

		stamp := r.timeProvider.FormatForDB(now)
		for _, job := range stale {
			duration := max(now.Sub(job.CreatedAt).Milliseconds(), 0)
			res, execErr := tx.ExecContext(ctx, r.q(`
				UPDATE jobs
				SET status = 'failed', result = NULL, error = ?, duration_ms = ?, updated_at = ?
				WHERE id = ? AND status = 'running'`),
				msg, duration, stamp, job.ID,
			)
			if execErr != nil {
				return fmt.Errorf("fail stale job %s: %w", job.ID, execErr)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if archiveErr := r.archiveInTx(ctx, tx, core.ArchiveParams{
				JobID:       job.ID,
				Status:      model.JobStatusFailed,
				DurationMs:  duration,
				Suites:      job.Suites,
				CompletedAt: now,
			}); archiveErr != nil {
				return archiveErr
			}
			failed++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	if failed > 0 {
		r.logger.InfoContext(ctx, "failed stale running jobs", "count", failed, "max_age", params.MaxAge)
	}
	return failed, nil
}

// DeleteOldJobs archives and deletes jobs with the given terminal status whose last
// update is older than maxAge. Processes up to batchSize jobs per call.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of jobs deleted.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.IsTerminal() {
		return 0, fmt.Errorf("invalid job status for deletion: %s", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var deleted int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := r.tryReaperLock(ctx, tx, advisoryLockReaperDelete)
		if err != nil || !locked {
			return err
		}

		cutoff := r.timeProvider.Now().Add(-params.MaxAge)
		expired, err := r.selectJobs(ctx, tx, r.q(`
			SELECT `+jobColumns+` FROM jobs
			WHERE status = ? AND updated_at < ?
			ORDER BY updated_at
			LIMIT ?`+r.forUpdate()),
			string(params.Status), r.timeProvider.FormatForDB(cutoff), params.BatchSize,
		)
		if err != nil {
			return err
		}

		for _, job := range expired {
			if archiveErr := r.archiveInTx(ctx, tx, archiveParamsFor(job)); archiveErr != nil {
				return archiveErr
			}
			res, execErr := tx.ExecContext(ctx, r.q(`DELETE FROM jobs WHERE id = ?`), job.ID)
			if execErr != nil {
				return fmt.Errorf("delete old job %s: %w", job.ID, execErr)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return deleted, nil
}

func (r *JobRepo) selectJobs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*model.Job, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
