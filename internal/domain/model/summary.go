package model

import (
	"encoding/json"
	"time"
)

// TestOutcome is the verdict of a single compliance check.
type TestOutcome string

const (
	// TestOutcomePassed marks a passing check.
	TestOutcomePassed TestOutcome = "Passed"
	// TestOutcomeFailed marks a failing check.
	TestOutcomeFailed TestOutcome = "Failed"
	// TestOutcomeSkipped marks a check the engine skipped.
	TestOutcomeSkipped TestOutcome = "Skipped"
	// TestOutcomeNotRun marks a check the engine never executed. Counted as skipped.
	TestOutcomeNotRun TestOutcome = "NotRun"
)

// TestResultRecord is one flattened row of the result document.
type TestResultRecord struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Result        TestOutcome `json:"result"`
	DurationMs    int64       `json:"durationMs"`
	Severity      Severity    `json:"severity"`
	Category      string      `json:"category"`
	Block         string      `json:"block"`
	ErrorRecord   *string     `json:"errorRecord,omitempty"`
	Description   *string     `json:"description,omitempty"`
	ResultDetail  *string     `json:"resultDetail,omitempty"`
	SkippedReason *string     `json:"skippedReason,omitempty"`
	Investigate   *bool       `json:"investigate,omitempty"`
	Service       *string     `json:"service,omitempty"`
}

// ServiceName identifies one of the remote services a scan may connect to.
type ServiceName string

const (
	ServiceDirectory     ServiceName = "directory"
	ServiceMail          ServiceName = "mail"
	ServiceCompliance    ServiceName = "compliance"
	ServiceCollaboration ServiceName = "collaboration"
	ServiceCloud         ServiceName = "cloud"
)

// AllServices lists every service in diagnostic order.
func AllServices() []ServiceName {
	return []ServiceName{ServiceDirectory, ServiceMail, ServiceCompliance, ServiceCollaboration, ServiceCloud}
}

// ConnectionStatus records whether a service connected and, if not, why.
type ConnectionStatus struct {
	Connected bool    `json:"connected"`
	Error     *string `json:"error"`
}

// Connected returns a successful connection status.
func Connected() ConnectionStatus {
	return ConnectionStatus{Connected: true}
}

// ConnectionFailed returns a failed connection status carrying reason.
func ConnectionFailed(reason string) ConnectionStatus {
	return ConnectionStatus{Error: &reason}
}

// ConnectionDiagnostics holds one status per service.
type ConnectionDiagnostics map[ServiceName]ConnectionStatus

// NewConnectionDiagnostics returns diagnostics where every service starts as not attempted.
func NewConnectionDiagnostics() ConnectionDiagnostics {
	d := make(ConnectionDiagnostics, len(AllServices()))
	for _, s := range AllServices() {
		d[s] = ConnectionFailed("not attempted")
	}
	return d
}

// JobSummary is the result document of a completed scan.
// Construct it with NewJobSummary so the counts always agree with Tests.
type JobSummary struct {
	TotalCount     int                   `json:"totalCount"`
	PassedCount    int                   `json:"passedCount"`
	FailedCount    int                   `json:"failedCount"`
	SkippedCount   int                   `json:"skippedCount"`
	DurationMs     int64                 `json:"durationMs"`
	Timestamp      time.Time             `json:"timestamp"`
	SuitesRun      []string              `json:"suitesRun"`
	SeverityFilter []Severity            `json:"severityFilter"`
	Connections    ConnectionDiagnostics `json:"connections"`
	Tests          []TestResultRecord    `json:"tests"`
}

// SummaryParams carries everything needed to build a JobSummary except the counts.
type SummaryParams struct {
	Tests          []TestResultRecord
	DurationMs     int64
	Timestamp      time.Time
	SuitesRun      []string
	SeverityFilter []Severity
	Connections    ConnectionDiagnostics
}

// NewJobSummary builds a JobSummary, deriving every count from the records.
func NewJobSummary(p SummaryParams) *JobSummary {
	tests := p.Tests
	if tests == nil {
		tests = []TestResultRecord{}
	}
	suites := p.SuitesRun
	if suites == nil {
		suites = []string{}
	}
	filter := p.SeverityFilter
	if filter == nil {
		filter = []Severity{}
	}
	conns := p.Connections
	if conns == nil {
		conns = NewConnectionDiagnostics()
	}

	s := &JobSummary{
		TotalCount:     len(tests),
		DurationMs:     p.DurationMs,
		Timestamp:      p.Timestamp.UTC(),
		SuitesRun:      suites,
		SeverityFilter: filter,
		Connections:    conns,
		Tests:          tests,
	}
	for _, t := range tests {
		switch t.Result {
		case TestOutcomePassed:
			s.PassedCount++
		case TestOutcomeFailed:
			s.FailedCount++
		case TestOutcomeSkipped, TestOutcomeNotRun:
			s.SkippedCount++
		}
	}
	return s
}

// Consistent reports whether the counts agree with the records.
func (s *JobSummary) Consistent() bool {
	if s == nil {
		return false
	}
	return s.TotalCount == len(s.Tests) && s.PassedCount+s.FailedCount+s.SkippedCount == s.TotalCount
}

// ParseJobSummary decodes a stored result document.
func ParseJobSummary(data []byte) (*JobSummary, error) {
	var s JobSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
