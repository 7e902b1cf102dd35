package model

import (
	"errors"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// Secret is a credential value that never renders in logs or formatted output.
// It still marshals to JSON verbatim so it can reach a worker over stdin.
type Secret string

// Reveal returns the raw secret value.
func (s Secret) Reveal() string { return string(s) }

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer so %#v does not leak the value.
func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// CredentialBundle is the caller-supplied credential material for one job.
type CredentialBundle struct {
	BearerToken     Secret `json:"bearerToken,omitempty"`
	AppClientID     string `json:"appClientId,omitempty"`
	AppClientSecret Secret `json:"appClientSecret,omitempty"`
	TenantID        string `json:"tenantId,omitempty"`
}

// HasAppCredentials reports whether application credentials are present.
func (c CredentialBundle) HasAppCredentials() bool {
	return c.AppClientID != "" && c.AppClientSecret != ""
}

// LogValue implements slog.LogValuer.
func (c CredentialBundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tenant_id", c.TenantID),
		slog.String("app_client_id", c.AppClientID),
		slog.Bool("has_app_secret", c.AppClientSecret != ""),
		slog.Bool("has_bearer_token", c.BearerToken != ""),
	)
}

// StoreLocator tells a worker process how to reach the job store.
type StoreLocator struct {
	Driver string `json:"driver"`
	DSN    Secret `json:"dsn"`
}

// WorkerBundle is the immutable argument bundle handed to a worker process.
type WorkerBundle struct {
	JobID              string           `json:"jobId"`
	TenantID           string           `json:"tenantId"`
	Suites             []string         `json:"suites"`
	Severity           []Severity       `json:"severity"`
	Tags               []string         `json:"tags"`
	IncludeLongRunning bool             `json:"includeLongRunning"`
	IncludePreview     bool             `json:"includePreview"`
	Credentials        CredentialBundle `json:"credentials"`
	Store              StoreLocator     `json:"store"`
}

// Validate checks the fields a worker cannot run without.
func (b *WorkerBundle) Validate() error {
	if b == nil {
		return errors.New("worker bundle is required")
	}
	if strings.TrimSpace(b.JobID) == "" {
		return errors.New("worker bundle job id is required")
	}
	if b.Store.Driver == "" || b.Store.DSN == "" {
		return errors.New("worker bundle store locator is required")
	}
	return nil
}

// LogValue implements slog.LogValuer.
func (b WorkerBundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("job_id", b.JobID),
		slog.String("tenant_id", b.TenantID),
		slog.Any("suites", b.Suites),
		slog.Any("severity", b.Severity),
		slog.Any("credentials", b.Credentials),
	)
}

// LogValue implements slog.LogValuer.
func (r SubmitRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tenant_id", r.TenantID),
		slog.Any("suites", r.Suites),
		slog.Any("severity", r.Severity),
		slog.Any("tags", r.Tags),
		slog.Bool("has_app_credentials", r.AppClientID != ""),
		slog.Bool("has_bearer_token", r.BearerToken != ""),
	)
}

// Sessions holds the in-memory access tokens acquired for one job.
// Empty fields mean the service is not connected.
type Sessions struct {
	TenantID               string
	Directory              Secret
	Mail                   Secret
	Compliance             Secret
	ComplianceDomain       string
	CollaborationDirectory Secret
	Collaboration          Secret
	Cloud                  Secret
}

// LogValue implements slog.LogValuer.
func (s *Sessions) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("tenant_id", s.TenantID),
		slog.Bool("directory", s.Directory != ""),
		slog.Bool("mail", s.Mail != ""),
		slog.Bool("compliance", s.Compliance != ""),
		slog.Bool("collaboration", s.Collaboration != ""),
		slog.Bool("cloud", s.Cloud != ""),
	)
}
