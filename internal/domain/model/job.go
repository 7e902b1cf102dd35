// Package model defines the core data types and structures used throughout the tenantscan job engine.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobStatus represents the current status of a scan job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusRunning indicates a worker has been launched for the job and no terminal state was written yet.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the scan finished and a result document is available.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the scan could not finish; Error holds the reason.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusRunning || s == JobStatusCompleted || s == JobStatusFailed
}

// IsTerminal reports whether no further transitions are possible from this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one asynchronous scan request and its lifecycle record.
type Job struct {
	ID             string      `json:"jobId"`
	TenantID       string      `json:"tenantId"`
	Status         JobStatus   `json:"status"`
	Suites         []string    `json:"suites"`
	SeverityFilter []Severity  `json:"severityFilter"`
	Result         *JobSummary `json:"result"`
	Error          *string     `json:"error"`
	DurationMs     *int64      `json:"durationMs,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Validate checks the result/error invariant for the job's status.
func (j *Job) Validate() error {
	if j == nil {
		return errors.New("job is nil")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("invalid job status: %q", j.Status)
	}
	switch j.Status {
	case JobStatusRunning:
		if j.Result != nil || j.Error != nil {
			return errors.New("running job must not carry a result or error")
		}
	case JobStatusCompleted:
		if j.Result == nil || j.Error != nil {
			return errors.New("completed job must carry a result and no error")
		}
	case JobStatusFailed:
		if j.Result != nil || j.Error == nil {
			return errors.New("failed job must carry an error and no result")
		}
	}
	return nil
}

// JobStats aggregates the append-only completion history.
type JobStats struct {
	CompletedCount  int64      `json:"completedCount"`
	FailedCount     int64      `json:"failedCount"`
	AvgDurationMs   float64    `json:"avgDurationMs"`
	MinDurationMs   int64      `json:"minDurationMs"`
	MaxDurationMs   int64      `json:"maxDurationMs"`
	LastCompletedAt *Timestamp `json:"lastCompletedAt"`
}

// ErrInvalidSuite is returned when a suite name could escape the test selection root.
var ErrInvalidSuite = errors.New("suite names may only contain letters, digits, '-' and '_'")

var suiteNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SubmitRequest is the caller's scan request as received from the submission interface.
type SubmitRequest struct {
	Suites             []string `json:"suites,omitempty"`
	Severity           []string `json:"severity,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	IncludeLongRunning bool     `json:"includeLongRunning,omitempty"`
	IncludePreview     bool     `json:"includePreview,omitempty"`
	TenantID           string   `json:"tenantId,omitempty"`
	AppClientID        string   `json:"appClientId,omitempty"`
	AppClientSecret    Secret   `json:"appClientSecret,omitempty"`
	BearerToken        Secret   `json:"bearerToken"`
}

// Validate validates the SubmitRequest fields and returns the parsed severity filter.
func (r *SubmitRequest) Validate() ([]Severity, error) {
	if r == nil {
		return nil, errors.New("submit request is required")
	}
	for _, s := range r.Suites {
		if !suiteNamePattern.MatchString(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSuite, s)
		}
	}
	severities, err := ParseSeverities(r.Severity)
	if err != nil {
		return nil, err
	}
	if (r.AppClientID == "") != (r.AppClientSecret == "") {
		return nil, errors.New("appClientId and appClientSecret must be provided together")
	}
	return severities, nil
}

// Credentials extracts the per-job credential bundle from the request.
func (r *SubmitRequest) Credentials() CredentialBundle {
	return CredentialBundle{
		BearerToken:     r.BearerToken,
		AppClientID:     strings.TrimSpace(r.AppClientID),
		AppClientSecret: r.AppClientSecret,
		TenantID:        strings.TrimSpace(r.TenantID),
	}
}

// SubmitResponse is returned once a job row exists and its worker has been launched.
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt Timestamp `json:"createdAt"`
}

// PollResponse is the polling interface's view of a job.
type PollResponse struct {
	JobID     string      `json:"jobId"`
	Status    JobStatus   `json:"status"`
	CreatedAt Timestamp   `json:"createdAt"`
	UpdatedAt Timestamp   `json:"updatedAt"`
	Result    *JobSummary `json:"result"`
	Error     *string     `json:"error"`
}

// NewPollResponse builds the polling view of a job.
func NewPollResponse(j *Job) *PollResponse {
	return &PollResponse{
		JobID:     j.ID,
		Status:    j.Status,
		CreatedAt: NewTimestamp(j.CreatedAt),
		UpdatedAt: NewTimestamp(j.UpdatedAt),
		Result:    j.Result,
		Error:     j.Error,
	}
}
