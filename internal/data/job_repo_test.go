package data

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
	"github.com/target/tenantscan/internal/testutil"
)

type storeFixture struct {
	db      *sql.DB
	dsn     string
	dialect Dialect
}

// forEachStore runs fn against a sqlite store and, when enabled, a postgres store.
func forEachStore(t *testing.T, fn func(t *testing.T, s storeFixture)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		db, path := testutil.NewSQLiteDB(t)
		fn(t, storeFixture{db: db, dsn: path, dialect: DialectSQLite})
	})
	t.Run("postgres", func(t *testing.T) {
		db, dsn := testutil.NewPostgresDB(t)
		fn(t, storeFixture{db: db, dsn: dsn, dialect: DialectPostgres})
	})
}

func newTestRepo(s storeFixture, tp TimeProvider) *JobRepo {
	return NewJobRepo(s.db, RepoConfig{Dialect: s.dialect, TimeProvider: tp})
}

func createParams(tenant string) core.CreateJobParams {
	return core.CreateJobParams{
		TenantID:       tenant,
		Suites:         []string{"Directory"},
		SeverityFilter: []model.Severity{model.SeverityCritical, model.SeverityHigh},
	}
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestRepo(s, tp)
		ctx := context.Background()

		job, err := repo.Create(ctx, createParams("contoso.com"))
		require.NoError(t, err)
		require.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusRunning, job.Status)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "contoso.com", got.TenantID)
		assert.Equal(t, model.JobStatusRunning, got.Status)
		assert.Equal(t, []string{"Directory"}, got.Suites)
		assert.Equal(t, []model.Severity{model.SeverityCritical, model.SeverityHigh}, got.SeverityFilter)
		assert.Nil(t, got.Result)
		assert.Nil(t, got.Error)
		assert.Nil(t, got.DurationMs)
		assert.True(t, got.CreatedAt.Equal(testutil.TestTime()))
		require.NoError(t, got.Validate())
	})
}

func TestJobRepo_CreateStoresEmptyListsVerbatim(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		job, err := repo.Create(ctx, core.CreateJobParams{TenantID: ""})
		require.NoError(t, err)

		var suites, severity string
		require.NoError(t, s.db.QueryRowContext(ctx,
			repo.q(`SELECT suites, severity_filter FROM jobs WHERE id = ?`), job.ID,
		).Scan(&suites, &severity))
		assert.Equal(t, "[]", suites)
		assert.Equal(t, "[]", severity)
	})
}

func TestJobRepo_GetByIDNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)

		_, err := repo.GetByID(context.Background(), "missing")
		require.ErrorIs(t, err, ErrJobNotFound)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobRepo_TenantGate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		first, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, createParams("tenant-a"))
		require.ErrorIs(t, err, ErrTenantBusy)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, 1, testutil.CountRows(t, s.db, "jobs"), "rejection must not create state")

		// Different tenants never contend.
		_, err = repo.Create(ctx, createParams("tenant-b"))
		require.NoError(t, err)

		// A terminal job frees the tenant.
		ok, err := repo.Fail(ctx, core.FailJobParams{ID: first.ID, Error: "boom", DurationMs: 10})
		require.NoError(t, err)
		require.True(t, ok)

		_, err = repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)
	})
}

func TestJobRepo_TenantGateConfiguredLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := NewJobRepo(s.db, RepoConfig{Dialect: s.dialect, TenantConcurrency: 2})
		ctx := context.Background()

		for range 2 {
			_, err := repo.Create(ctx, createParams("tenant-a"))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, createParams("tenant-a"))
		require.ErrorIs(t, err, ErrTenantBusy)
	})
}

func TestJobRepo_TenantGateConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		const attempts = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
			busy     int
			other    []error
		)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Create(ctx, createParams("contended"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case apperrors.IsConflict(err):
					busy++
				default:
					other = append(other, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, other)
		assert.Equal(t, 1, accepted)
		assert.Equal(t, attempts-1, busy)

		var running int
		require.NoError(t, s.db.QueryRowContext(ctx,
			repo.q(`SELECT COUNT(*) FROM jobs WHERE tenant_id = ? AND status = 'running'`), "contended",
		).Scan(&running))
		assert.Equal(t, 1, running)
	})
}

func TestJobRepo_TerminalWritesAreIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		job, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)

		summary := testutil.Summary(
			testutil.Record("EIDSCA.AF01", model.TestOutcomePassed, model.SeverityHigh),
			testutil.Record("EIDSCA.AF02", model.TestOutcomeFailed, model.SeverityCritical),
		)
		ok, err := repo.Complete(ctx, core.CompleteJobParams{ID: job.ID, Result: summary, DurationMs: 1500})
		require.NoError(t, err)
		require.True(t, ok)

		before, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)

		ok, err = repo.Complete(ctx, core.CompleteJobParams{ID: job.ID, Result: testutil.Summary(), DurationMs: 9})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Fail(ctx, core.FailJobParams{ID: job.ID, Error: "late failure", DurationMs: 9})
		require.NoError(t, err)
		assert.False(t, ok)

		after, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, model.JobStatusCompleted, after.Status)
		require.NotNil(t, after.Result)
		assert.Equal(t, 2, after.Result.TotalCount)
		assert.Equal(t, int64(1500), *after.DurationMs)
		assert.Nil(t, after.Error)
		require.NoError(t, after.Validate())
	})
}

func TestJobRepo_TerminalWriteToDeletedJobIsNoop(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		job, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, job.ID))

		ok, err := repo.Complete(ctx, core.CompleteJobParams{ID: job.ID, Result: testutil.Summary(), DurationMs: 1})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Fail(ctx, core.FailJobParams{ID: job.ID, Error: "orphan", DurationMs: 1})
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetByID(ctx, job.ID)
		require.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobRepo_CompleteRequiresResult(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)

		_, err := repo.Complete(context.Background(), core.CompleteJobParams{ID: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRepo_DeleteMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		require.ErrorIs(t, repo.Delete(context.Background(), "missing"), ErrJobNotFound)
	})
}

func TestJobRepo_TakeTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestRepo(s, tp)
		ctx := context.Background()

		job, err := repo.Create(ctx, createParams("tenant-a"))
		require.NoError(t, err)

		_, err = repo.TakeTerminal(ctx, job.ID)
		require.ErrorIs(t, err, ErrJobNotTerminal)
		assert.Equal(t, 1, testutil.CountRows(t, s.db, "jobs"))

		tp.AddTime(2 * time.Second)
		ok, err := repo.Fail(ctx, core.FailJobParams{ID: job.ID, Error: "auth failed", DurationMs: 2000})
		require.NoError(t, err)
		require.True(t, ok)

		taken, err := repo.TakeTerminal(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, taken.Status)
		require.NotNil(t, taken.Error)
		assert.Equal(t, "auth failed", *taken.Error)

		_, err = repo.TakeTerminal(ctx, job.ID)
		require.ErrorIs(t, err, ErrJobNotFound)
		_, err = repo.GetByID(ctx, job.ID)
		require.ErrorIs(t, err, ErrJobNotFound)

		assert.Equal(t, 0, testutil.CountRows(t, s.db, "jobs"))
		assert.Equal(t, 1, testutil.CountRows(t, s.db, "job_stats"))
	})
}

func TestJobRepo_ArchiveCompletionIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		params := core.ArchiveParams{
			JobID:       "job-1",
			Status:      model.JobStatusCompleted,
			DurationMs:  100,
			Suites:      []string{"Mail"},
			CompletedAt: testutil.TestTime(),
		}
		require.NoError(t, repo.ArchiveCompletion(ctx, params))
		require.NoError(t, repo.ArchiveCompletion(ctx, params))
		assert.Equal(t, 1, testutil.CountRows(t, s.db, "job_stats"))

		err := repo.ArchiveCompletion(ctx, core.ArchiveParams{JobID: "job-2", Status: model.JobStatusRunning})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRepo_Stats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storeFixture) {
		repo := newTestRepo(s, nil)
		ctx := context.Background()

		empty, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.JobStats{}, *empty)

		base := testutil.TestTime()
		rows := []core.ArchiveParams{
			{JobID: "a", Status: model.JobStatusCompleted, DurationMs: 100, CompletedAt: base},
			{JobID: "b", Status: model.JobStatusCompleted, DurationMs: 300, CompletedAt: base.Add(time.Minute)},
			{JobID: "c", Status: model.JobStatusFailed, DurationMs: 200, CompletedAt: base.Add(2 * time.Minute)},
		}
		for _, row := range rows {
			require.NoError(t, repo.ArchiveCompletion(ctx, row))
		}

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.CompletedCount)
		assert.Equal(t, int64(1), stats.FailedCount)
		assert.InDelta(t, 200.0, stats.AvgDurationMs, 0.001)
		assert.Equal(t, int64(100), stats.MinDurationMs)
		assert.Equal(t, int64(300), stats.MaxDurationMs)
		require.NotNil(t, stats.LastCompletedAt)
		assert.True(t, stats.LastCompletedAt.Equal(base.Add(2*time.Minute)))
	})
}

// A worker process opens its own handle on the same store; its terminal write must land.
func TestJobRepo_TerminalWriteFromSecondHandle(t *testing.T) {
	db, path := testutil.NewSQLiteDB(t)
	repo := NewJobRepo(db, RepoConfig{})
	ctx := context.Background()

	job, err := repo.Create(ctx, createParams("tenant-a"))
	require.NoError(t, err)

	workerDB := testutil.OpenStore(t, "sqlite", path)
	workerRepo := NewJobRepo(workerDB, RepoConfig{})
	ok, err := workerRepo.Complete(ctx, core.CompleteJobParams{ID: job.ID, Result: testutil.Summary(), DurationMs: 5})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}
