package config

import (
	"strings"
	"time"
)

// ScanConfig contains scan admission configuration.
type ScanConfig struct {
	// TenantConcurrency is the number of running jobs admitted per tenant.
	TenantConcurrency int `env:"SCAN_TENANT_CONCURRENCY" envDefault:"1"`
}

// Sanitize applies guardrails to scan configuration values.
func (s *ScanConfig) Sanitize() {
	if s.TenantConcurrency < 1 {
		s.TenantConcurrency = 1
	}
}

// EngineConfig describes the external test-execution engine.
type EngineConfig struct {
	Command   string        `env:"COMMAND"    envDefault:"pwsh"`
	Args      []string      `env:"ARGS"       envDefault:"-NoLogo,-NonInteractive,-File,/opt/tenantscan/run-engine.ps1"`
	TestsRoot string        `env:"TESTS_ROOT" envDefault:"/opt/tenantscan/tests"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"25m"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	e.Command = strings.TrimSpace(e.Command)
	e.TestsRoot = strings.TrimSpace(e.TestsRoot)
	if e.Timeout < time.Minute {
		e.Timeout = time.Minute
	}
}

// CredentialsConfig contains credential acquisition configuration.
type CredentialsConfig struct {
	// Authority is the identity platform authority used for discovery and grants.
	Authority string `env:"AUTHORITY" envDefault:"https://login.microsoftonline.com"`

	// GrantTimeout bounds each client-credentials grant.
	GrantTimeout time.Duration `env:"GRANT_TIMEOUT" envDefault:"30s"`

	// Per-service resource scopes.
	DirectoryScope     string `env:"DIRECTORY_SCOPE"     envDefault:"https://graph.microsoft.com/.default"`
	MailScope          string `env:"MAIL_SCOPE"          envDefault:"https://outlook.office365.com/.default"`
	ComplianceScope    string `env:"COMPLIANCE_SCOPE"    envDefault:"https://ps.compliance.protection.outlook.com/.default"`
	CollaborationScope string `env:"COLLABORATION_SCOPE" envDefault:"https://api.spaces.skype.com/.default"`
	ManagementScope    string `env:"MANAGEMENT_SCOPE"    envDefault:"https://management.azure.com/.default"`
}

// Sanitize applies guardrails to credential configuration values.
func (c *CredentialsConfig) Sanitize() {
	c.Authority = strings.TrimSuffix(strings.TrimSpace(c.Authority), "/")
	if c.Authority == "" {
		c.Authority = "https://login.microsoftonline.com"
	}
	if c.GrantTimeout <= 0 {
		c.GrantTimeout = 30 * time.Second
	}
}
