// Package pagerduty raises scan failure incidents through the PagerDuty Events API v2.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/tenantscan/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	defaultTimeout = 5 * time.Second
	retryStep      = 200 * time.Millisecond
	defaultName    = "tenantscan"
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client triggers one incident per failed job.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

// apiError is a non-2xx answer from the events API.
type apiError struct {
	status int
	text   string
}

func (e *apiError) Error() string { return "pagerduty api " + e.text }

// retryable reports whether resending the same event can succeed.
// PagerDuty rejects malformed events and bad routing keys with a 4xx that never clears.
func (e *apiError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

// NewClient requires a routing key. Source and component default to "tenantscan".
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, defaultName),
		component:  orDefault(cfg.Component, defaultName),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendScanFailure triggers an incident, retrying transient API failures with linear backoff.
func (c *Client) SendScanFailure(ctx context.Context, payload notify.ScanFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err = c.submit(ctx, body)
		var apiErr *apiError
		if err == nil || attempt >= c.retryLimit || (errors.As(err, &apiErr) && !apiErr.retryable()) {
			return err
		}

		timer := time.NewTimer(time.Duration(attempt+1) * retryStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) buildEvent(payload notify.ScanFailurePayload) event {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	jobID := orDefault(payload.JobID, "unknown")

	details := make(map[string]any, len(payload.Metadata)+6)
	for k, v := range payload.Metadata {
		details[k] = v
	}
	// Canonical fields win over metadata keys of the same name.
	details["job_id"] = payload.JobID
	details["tenant_id"] = payload.TenantID
	details["suites"] = strings.Join(payload.Suites, ",")
	details["stage"] = payload.Stage
	details["error"] = payload.Error
	details["error_class"] = payload.ErrorClass

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    "scan:" + jobID,
		Payload: eventPayload{
			Summary:       fmt.Sprintf("Scan %s for %s failed", jobID, orDefault(payload.TenantID, "unknown tenant")),
			Severity:      orDefault(strings.ToLower(payload.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     occurredAt.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("read pagerduty error response: %w", readErr)
	}
	return &apiError{
		status: resp.StatusCode,
		text:   strings.TrimSpace(resp.Status + ": " + string(detail)),
	}
}
