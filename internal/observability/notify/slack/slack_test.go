package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tenantscan/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#scans",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.ScanFailurePayload{
		JobID:      "123",
		TenantID:   "contoso.onmicrosoft.com",
		Suites:     []string{"Directory", "Mail"},
		Stage:      notify.StageScan,
		Error:      "engine run: exit status 1",
		ErrorClass: "exec_exiterror",
		Metadata:   map[string]string{"b": "2", "a": "1"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#scans", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{
		"*Scan failure* `123` (scan)",
		"Tenant: contoso.onmicrosoft.com",
		"Suites: Directory, Mail",
		"Severity: critical",
		"exec_exiterror",
		"engine run: exit status 1",
	} {
		assert.Contains(t, text, want)
	}
	assert.Less(t, strings.Index(text, "a: 1"), strings.Index(text, "b: 2"), "metadata sorted by key")
}

func TestFormatJobValue(t *testing.T) {
	tcs := []struct {
		name   string
		jobID  string
		prefix string
		want   string
	}{
		{
			name:   "linked",
			jobID:  "job-1",
			prefix: "https://scans.example/api/scans",
			want:   "<https://scans.example/api/scans/job-1|job-1>",
		},
		{
			name:   "invalid prefix falls back to code",
			jobID:  "job-2",
			prefix: "not a url",
			want:   "`job-2`",
		},
		{
			name:  "no prefix",
			jobID: "job-3",
			want:  "`job-3`",
		},
		{
			name:   "empty id",
			prefix: "https://scans.example/api/scans",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:   "https://hooks.slack.com/services/test",
				JobURLPrefix: tc.prefix,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, client.formatJobValue(tc.jobID))
		})
	}
}

func TestFormatMessageEscapesText(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.ScanFailurePayload{TenantID: "a & <b>"})
	assert.Contains(t, msg["text"], "a &amp; &lt;b&gt;")
}

func TestSendScanFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, client.SendScanFailure(context.Background(), notify.ScanFailurePayload{JobID: "1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendScanFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendScanFailure(context.Background(), notify.ScanFailurePayload{JobID: "1"})
	require.ErrorContains(t, err, "no_service")
}
