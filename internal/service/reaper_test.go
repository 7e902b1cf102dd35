package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/mocks"
	"github.com/target/tenantscan/internal/observability/metrics"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	mu sync.Mutex

	failStaleCalled int
	failStaleCount  int64
	failStaleError  error
	failStaleParams []core.FailStaleParams

	deleteOldJobsCalled int
	deleteOldJobsCount  int64
	deleteOldJobsError  error
	deleteOldJobsParams []core.DeleteOldJobsParams
}

func (m *mockReaperRepo) FailStaleRunningJobs(_ context.Context, params core.FailStaleParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStaleCalled++
	m.failStaleParams = append(m.failStaleParams, params)
	if m.failStaleError != nil {
		return 0, m.failStaleError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failStaleCalled == 1 {
		return m.failStaleCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteOldJobsCalled++
	m.deleteOldJobsParams = append(m.deleteOldJobsParams, params)
	if m.deleteOldJobsError != nil {
		return 0, m.deleteOldJobsError
	}
	// Return count on odd calls, then 0 on even calls so each status gets one batch
	if m.deleteOldJobsCalled%2 == 1 {
		return m.deleteOldJobsCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failStaleCalled, m.deleteOldJobsCalled
}

// recordingSink captures StatsD calls.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string][]map[string]string
	values map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		counts: map[string][]map[string]string{},
		values: map[string]int64{},
		gauges: map[string]float64{},
	}
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] = append(s.counts[name], tags)
	s.values[name] += value
}

func (s *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *recordingSink) Timing(string, time.Duration, map[string]string) {}

func defaultReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        time.Minute,
		RunningMaxAge:   30 * time.Minute,
		CompletedMaxAge: time.Hour,
		FailedMaxAge:    24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: defaultReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: defaultReaperConfig()})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestStaleMessage(t *testing.T) {
	assert.Equal(t, "scan timed out after 30m0s without reporting a result", StaleMessage(30*time.Minute))
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleCount: 5, deleteOldJobsCount: 10}
		sink := newRecordingSink()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: defaultReaperConfig(), Metrics: sink})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))

		// Each operation is called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.failStaleCalled)
		// DeleteOldJobs is called twice per status (completed, failed): 2 * 2 = 4
		assert.Equal(t, 4, repo.deleteOldJobsCalled)

		require.Len(t, sink.counts["reaper.cleanup"], 1)
		assert.Equal(t, "success", sink.counts["reaper.cleanup"][0]["result"])
		assert.Len(t, sink.counts["reaper.cleanup_operation"], 3)
		assert.Contains(t, sink.gauges, "reaper.last_success_epoch")
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleError: errors.New("fail error"), deleteOldJobsCount: 10}
		sink := newRecordingSink()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: defaultReaperConfig(), Metrics: sink})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())

		// Should return error but still call all cleanup methods
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale running jobs")
		assert.Equal(t, 1, repo.failStaleCalled)
		assert.Equal(t, 4, repo.deleteOldJobsCalled)
		assert.Equal(t, "error", sink.counts["reaper.cleanup"][0]["result"])
		assert.NotContains(t, sink.gauges, "reaper.last_success_epoch")
	})

	t.Run("records failed stale jobs as timeouts", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleCount: 3, deleteOldJobsCount: 10}
		sink := newRecordingSink()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: defaultReaperConfig(), Metrics: sink})
		require.NoError(t, err)
		before := promtest.ToFloat64(metrics.JobsTerminalCount.WithLabelValues("failed"))

		require.NoError(t, svc.runCleanup(context.Background()))

		require.Len(t, sink.counts["job.transition"], 1)
		assert.Equal(t, metrics.TransitionTimeout, sink.counts["job.transition"][0]["transition"])
		assert.Equal(t, int64(3), sink.values["job.transition"])
		assert.InDelta(t, before+3, promtest.ToFloat64(metrics.JobsTerminalCount.WithLabelValues("failed")), 0.001)
	})

	t.Run("noop when nothing is due", func(t *testing.T) {
		repo := &mockReaperRepo{}
		sink := newRecordingSink()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: defaultReaperConfig(), Metrics: sink})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))
		assert.Equal(t, "noop", sink.counts["reaper.cleanup"][0]["result"])
	})
}

func TestReaperService_ParamsPassedToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	cfg := defaultReaperConfig()
	cfg.BatchSize = 2

	gomock.InOrder(
		repo.EXPECT().FailStaleRunningJobs(gomock.Any(), core.FailStaleParams{
			MaxAge:    30 * time.Minute,
			BatchSize: 2,
			Message:   "scan timed out after 30m0s without reporting a result",
		}).Return(int64(2), nil),
		repo.EXPECT().FailStaleRunningJobs(gomock.Any(), gomock.Any()).Return(int64(1), nil),
		repo.EXPECT().FailStaleRunningJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{
			Status: model.JobStatusCompleted, MaxAge: time.Hour, BatchSize: 2,
		}).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{
			Status: model.JobStatusFailed, MaxAge: 24 * time.Hour, BatchSize: 2,
		}).Return(int64(0), nil),
	)

	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
	require.NoError(t, err)
	require.NoError(t, svc.runCleanup(context.Background()))
}

func TestReaperService_Run(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := defaultReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			// Should return nil on graceful shutdown
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		failCalls, _ := repo.calls()
		assert.GreaterOrEqual(t, failCalls, 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleError: errors.New("test error")}
		cfg := defaultReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.ErrorIs(t, err, context.DeadlineExceeded)
		failCalls, _ := repo.calls()
		assert.GreaterOrEqual(t, failCalls, 2)
	})
}
