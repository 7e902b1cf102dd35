package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/tenantscan/internal/domain/model"
	apperrors "github.com/target/tenantscan/internal/errors"
	"github.com/target/tenantscan/internal/mocks"
	"github.com/target/tenantscan/internal/service"
	"github.com/target/tenantscan/internal/testutil"
)

type scanHandlersFixture struct {
	router   http.Handler
	repo     *mocks.MockJobRepository
	launcher *mocks.MockWorkerLauncher
}

func newScanHandlersFixture(t *testing.T) *scanHandlersFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &scanHandlersFixture{
		repo:     mocks.NewMockJobRepository(ctrl),
		launcher: mocks.NewMockWorkerLauncher(ctrl),
	}
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:     f.repo,
		Launcher: f.launcher,
		Store:    model.StoreLocator{Driver: "sqlite", DSN: "file:/tmp/test.db"},
	})
	require.NoError(t, err)
	f.router = NewRouter(RouterServices{Jobs: svc, MaxBodyBytes: 1 << 16, Metrics: true})
	return f
}

func (f *scanHandlersFixture) do(t *testing.T, r *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	resp := w.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })

	var body map[string]any
	if r.Method != http.MethodHead && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return resp, body
}

func submitBody(t *testing.T, req *model.SubmitRequest) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func newRunningJob() *model.Job {
	return &model.Job{
		ID:        "job-123",
		TenantID:  "contoso.onmicrosoft.com",
		Status:    model.JobStatusRunning,
		CreatedAt: testutil.TestTime(),
		UpdatedAt: testutil.TestTime(),
	}
}

func TestSubmit_Accepted(t *testing.T) {
	f := newScanHandlersFixture(t)

	f.launcher.EXPECT().ReapExited().Return(0)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(newRunningJob(), nil)
	f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, bundle model.WorkerBundle) error {
			assert.Equal(t, "caller-token", bundle.Credentials.BearerToken.Reveal())
			return nil
		})
	f.launcher.EXPECT().Running().Return(1)

	r := httptest.NewRequest(http.MethodPost, "/api/scans",
		submitBody(t, testutil.NewSubmitRequest().WithSuites("Directory").Build()))
	resp, body := f.do(t, r)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-123", body["jobId"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "2024-01-01T12:00:00.000000Z", body["createdAt"])
}

func TestSubmit_BearerHeaderFallback(t *testing.T) {
	f := newScanHandlersFixture(t)

	f.launcher.EXPECT().ReapExited().Return(0)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(newRunningJob(), nil)
	f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, bundle model.WorkerBundle) error {
			assert.Equal(t, "header-token", bundle.Credentials.BearerToken.Reveal())
			return nil
		})
	f.launcher.EXPECT().Running().Return(1)

	req := testutil.NewSubmitRequest().WithBearerToken("").Build()
	r := httptest.NewRequest(http.MethodPost, "/api/scans", submitBody(t, req))
	r.Header.Set("Authorization", "Bearer header-token")
	resp, _ := f.do(t, r)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSubmit_Errors(t *testing.T) {
	t.Run("tenant busy", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		f.launcher.EXPECT().ReapExited().Return(0)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.Conflict("tenant already has a running scan"))

		r := httptest.NewRequest(http.MethodPost, "/api/scans", submitBody(t, testutil.NewSubmitRequest().Build()))
		resp, body := f.do(t, r)

		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "tenant_busy", body["error"])
	})

	t.Run("validation", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		req := testutil.NewSubmitRequest().WithSeverity("urgent").Build()

		r := httptest.NewRequest(http.MethodPost, "/api/scans", submitBody(t, req))
		resp, body := f.do(t, r)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_request", body["error"])
	})

	t.Run("unknown field", func(t *testing.T) {
		f := newScanHandlersFixture(t)

		r := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewBufferString(`{"tenant":"x"}`))
		resp, body := f.do(t, r)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_json", body["error"])
	})

	t.Run("trailing document", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		body := `{"tenantId":"t1","suites":["identity"]} {"tenantId":"t2"}`

		r := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewBufferString(body))
		resp, decoded := f.do(t, r)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_json", decoded["error"])
	})

	t.Run("body too large", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		big := `{"tenantId":"` + string(bytes.Repeat([]byte("a"), 1<<17)) + `"}`

		r := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewBufferString(big))
		resp, _ := f.do(t, r)

		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("store unavailable hides the cause", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		f.launcher.EXPECT().ReapExited().Return(0)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.Wrap(errors.New("database is locked"), apperrors.ErrCodeUnavailable, "store busy"))

		r := httptest.NewRequest(http.MethodPost, "/api/scans", submitBody(t, testutil.NewSubmitRequest().Build()))
		resp, body := f.do(t, r)

		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.NotContains(t, body["message"], "locked")
	})

	t.Run("internal error", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		f.launcher.EXPECT().ReapExited().Return(0)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk I/O error"))

		r := httptest.NewRequest(http.MethodPost, "/api/scans", submitBody(t, testutil.NewSubmitRequest().Build()))
		resp, body := f.do(t, r)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body["message"], "disk")
	})
}

func TestPoll(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-123").Return(newRunningJob(), nil)

		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/scans/job-123", nil))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "running", body["status"])
		assert.Nil(t, body["result"])
	})

	t.Run("timestamps are fixed width", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		job := newRunningJob()
		job.UpdatedAt = job.CreatedAt.Add(100 * time.Millisecond)
		f.repo.EXPECT().GetByID(gomock.Any(), "job-123").Return(job, nil)

		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/scans/job-123", nil))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2024-01-01T12:00:00.000000Z", body["createdAt"])
		assert.Equal(t, "2024-01-01T12:00:00.100000Z", body["updatedAt"])
	})

	t.Run("completed is handed out", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		job := newRunningJob()
		job.Status = model.JobStatusCompleted
		job.Result = testutil.Summary(testutil.Record("EIDSCA.AF01", model.TestOutcomeFailed, model.SeverityHigh))

		f.repo.EXPECT().GetByID(gomock.Any(), "job-123").Return(job, nil)
		f.repo.EXPECT().TakeTerminal(gomock.Any(), "job-123").Return(job, nil)
		f.launcher.EXPECT().Reap("job-123").Return(true)
		f.launcher.EXPECT().Running().Return(0)

		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/scans/job-123", nil))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "completed", body["status"])
		result, ok := body["result"].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 1, result["failedCount"], 0)
	})

	t.Run("not found", func(t *testing.T) {
		f := newScanHandlersFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "gone").Return(nil, apperrors.NotFound("job not found"))

		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/scans/gone", nil))

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", body["error"])
	})
}

func TestStats(t *testing.T) {
	f := newScanHandlersFixture(t)
	f.repo.EXPECT().Stats(gomock.Any()).Return(&model.JobStats{CompletedCount: 4, FailedCount: 1}, nil)

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/scans/stats", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 4, body["completedCount"], 0)
	assert.InDelta(t, 1, body["failedCount"], 0)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newScanHandlersFixture(t)

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenantscan_workers_running")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "", want: ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(r), tt.header)
	}
}
