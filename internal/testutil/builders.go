package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/tenantscan/internal/domain/model"
)

// SubmitRequestBuilder provides a fluent interface for building SubmitRequest objects for testing.
type SubmitRequestBuilder struct {
	req *model.SubmitRequest
}

// NewSubmitRequest creates a new SubmitRequestBuilder with sensible defaults.
func NewSubmitRequest() *SubmitRequestBuilder {
	return &SubmitRequestBuilder{
		req: &model.SubmitRequest{
			TenantID:    "contoso.onmicrosoft.com",
			BearerToken: "caller-token",
		},
	}
}

// WithTenant sets the tenant identifier.
func (b *SubmitRequestBuilder) WithTenant(tenantID string) *SubmitRequestBuilder {
	b.req.TenantID = tenantID
	return b
}

// WithSuites sets the requested suites.
func (b *SubmitRequestBuilder) WithSuites(suites ...string) *SubmitRequestBuilder {
	b.req.Suites = suites
	return b
}

// WithSeverity sets the requested severity filter.
func (b *SubmitRequestBuilder) WithSeverity(severity ...string) *SubmitRequestBuilder {
	b.req.Severity = severity
	return b
}

// WithTags sets the requested tags.
func (b *SubmitRequestBuilder) WithTags(tags ...string) *SubmitRequestBuilder {
	b.req.Tags = tags
	return b
}

// WithAppCredentials sets the application client id and secret.
func (b *SubmitRequestBuilder) WithAppCredentials(clientID, secret string) *SubmitRequestBuilder {
	b.req.AppClientID = clientID
	b.req.AppClientSecret = model.Secret(secret)
	return b
}

// WithBearerToken sets the caller-forwarded token. Empty removes it.
func (b *SubmitRequestBuilder) WithBearerToken(token string) *SubmitRequestBuilder {
	b.req.BearerToken = model.Secret(token)
	return b
}

// Build returns the constructed SubmitRequest.
func (b *SubmitRequestBuilder) Build() *model.SubmitRequest {
	return b.req
}

// Record builds a TestResultRecord with the given outcome and severity.
func Record(id string, outcome model.TestOutcome, severity model.Severity) model.TestResultRecord {
	return model.TestResultRecord{
		ID:       id,
		Name:     id,
		Result:   outcome,
		Severity: severity,
		Category: "Directory",
		Block:    "Directory",
	}
}

// Summary builds a JobSummary from records with every service connected.
func Summary(records ...model.TestResultRecord) *model.JobSummary {
	conns := model.NewConnectionDiagnostics()
	for _, s := range model.AllServices() {
		conns[s] = model.Connected()
	}
	return model.NewJobSummary(model.SummaryParams{
		Tests:       records,
		DurationMs:  1500,
		Timestamp:   TestTime(),
		SuitesRun:   []string{"Directory"},
		Connections: conns,
	})
}

// EngineTest is one test entry of a synthetic engine document.
type EngineTest struct {
	Name     string         `json:"Name"`
	Result   string         `json:"Result"`
	Duration any            `json:"Duration,omitempty"`
	Tag      []string       `json:"Tag,omitempty"`
	Data     map[string]any `json:"Data,omitempty"`
}

// EngineBlock is one block of a synthetic engine document.
type EngineBlock struct {
	Name   string        `json:"Name"`
	Tests  []EngineTest  `json:"Tests,omitempty"`
	Blocks []EngineBlock `json:"Blocks,omitempty"`
}

// EngineDocument renders blocks as a container-shaped engine output document.
func EngineDocument(blocks ...EngineBlock) []byte {
	doc := map[string]any{
		"Containers": []any{map[string]any{"Blocks": blocks}},
		"ExecutedAt": TestTime().Format(time.RFC3339),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}
