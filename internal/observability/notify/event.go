// Package notify defines the payload and sink contract for scan failure notifications.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Stages at which a scan can fail.
const (
	StageLaunch = "launch"
	StageSetup  = "setup"
	StageScan   = "scan"
)

// ScanFailurePayload captures the canonical data we emit for scan failure notifications.
// Error is always the sanitized message stored on the job.
type ScanFailurePayload struct {
	JobID      string
	TenantID   string
	Suites     []string
	Stage      string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming scan failure notifications.
type Sink interface {
	SendScanFailure(ctx context.Context, payload ScanFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload ScanFailurePayload) error

// SendScanFailure implements the Sink interface.
func (f SinkFunc) SendScanFailure(ctx context.Context, payload ScanFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
