package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/data"
	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/testutil"
)

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is required")
}

func TestRunner_FailsStaleJobs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db, _ := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	past := data.NewFixedTimeProvider(time.Now().Add(-2 * time.Hour))
	seed := data.NewJobRepo(db, data.RepoConfig{Dialect: data.DialectSQLite, TimeProvider: past})
	stale, err := seed.Create(ctx, core.CreateJobParams{TenantID: "contoso", Suites: []string{"Directory"}})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		DB:      db,
		Dialect: data.DialectSQLite,
		Config: config.ReaperConfig{
			Interval:        10 * time.Second,
			RunningMaxAge:   30 * time.Minute,
			CompletedMaxAge: time.Hour,
			FailedMaxAge:    24 * time.Hour,
			BatchSize:       10,
		},
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- runner.Run(runCtx) }()

	repo := data.NewJobRepo(db, data.RepoConfig{Dialect: data.DialectSQLite})
	require.Eventually(t, func() bool {
		job, getErr := repo.GetByID(ctx, stale.ID)
		return getErr == nil && job.Status == model.JobStatusFailed
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	job, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	assert.Equal(t, "scan timed out after 30m0s without reporting a result", *job.Error)
}
