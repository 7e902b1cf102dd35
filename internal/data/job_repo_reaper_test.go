package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/testutil"
)

func TestJobRepo_FailStaleRunningJobs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestRepo(s, tp)
		ctx := context.Background()

		stale, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)

		tp.AddTime(20 * time.Minute)
		fresh, err := repo.Create(ctx, createParams("tenant-b"))
		require.NoError(t, err)

		tp.AddTime(15 * time.Minute)
		count, err := repo.FailStaleRunningJobs(ctx, core.FailStaleParams{
			MaxAge:    30 * time.Minute,
			BatchSize: 100,
			Message:   "scan timed out after 30m0s without reporting a result",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Contains(t, *got.Error, "timed out")
		require.NotNil(t, got.DurationMs)
		assert.Equal(t, (35 * time.Minute).Milliseconds(), *got.DurationMs)
		require.NoError(t, got.Validate())

		still, err := repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, still.Status)

		assert.Equal(t, 1, testutil.CountRows(t, s.db, "job_stats"))

		// The stale job's worker reporting late cannot resurrect it.
		ok, err := repo.Complete(ctx, core.CompleteJobParams{ID: stale.ID, Result: testutil.Summary(), DurationMs: 1})
		require.NoError(t, err)
		assert.False(t, ok)

		// Nothing left to fail.
		count, err = repo.FailStaleRunningJobs(ctx, core.FailStaleParams{MaxAge: 30 * time.Minute, BatchSize: 100})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestJobRepo_FailStaleRunningJobsBatches(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(s.db, RepoConfig{Dialect: s.dialect, TimeProvider: tp, TenantConcurrency: 10})
		ctx := context.Background()

		for range 5 {
			_, err := repo.Create(ctx, createParams("tenant-a"))
			require.NoError(t, err)
		}
		tp.AddTime(time.Hour)

		params := core.FailStaleParams{MaxAge: 30 * time.Minute, BatchSize: 2}
		var counts []int64
		for {
			n, err := repo.FailStaleRunningJobs(ctx, params)
			require.NoError(t, err)
			counts = append(counts, n)
			if n == 0 {
				break
			}
		}
		assert.Equal(t, []int64{2, 2, 1, 0}, counts)
		assert.Equal(t, 5, testutil.CountRows(t, s.db, "job_stats"))
	})
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(s.db, RepoConfig{Dialect: s.dialect, TimeProvider: tp, TenantConcurrency: 10})
		ctx := context.Background()

		completed, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)
		failed, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)
		running, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)

		ok, err := repo.Complete(ctx, core.CompleteJobParams{ID: completed.ID, Result: testutil.Summary(), DurationMs: 10})
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.Fail(ctx, core.FailJobParams{ID: failed.ID, Error: "boom", DurationMs: 20})
		require.NoError(t, err)
		require.True(t, ok)

		tp.AddTime(2 * time.Hour)

		n, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status: model.JobStatusCompleted, MaxAge: time.Hour, BatchSize: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		// Failed rows have a longer expiry.
		n, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status: model.JobStatusFailed, MaxAge: 24 * time.Hour, BatchSize: 10,
		})
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = repo.GetByID(ctx, completed.ID)
		require.ErrorIs(t, err, ErrJobNotFound)
		_, err = repo.GetByID(ctx, failed.ID)
		require.NoError(t, err)
		_, err = repo.GetByID(ctx, running.ID)
		require.NoError(t, err)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.CompletedCount)
		assert.Equal(t, int64(10), stats.MaxDurationMs)
	})
}

func TestJobRepo_DeleteOldJobsRejectsBadParams(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		_, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{Status: model.JobStatusRunning, MaxAge: time.Hour, BatchSize: 1})
		require.Error(t, err)
		_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{Status: model.JobStatusFailed, MaxAge: time.Hour})
		require.Error(t, err)
		_, err = repo.FailStaleRunningJobs(ctx, core.FailStaleParams{BatchSize: 1})
		require.Error(t, err)
	})
}
