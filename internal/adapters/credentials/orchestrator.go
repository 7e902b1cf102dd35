// Package credentials acquires the per-service sessions a scan needs before the engine runs.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/domain/model"
)

// ErrDirectoryUnavailable is returned when no directory session can be established.
var ErrDirectoryUnavailable = errors.New("directory connection unavailable")

const reasonNoAppCredentials = "application credentials not provided"

// Scopes are the resource scopes requested per service.
type Scopes struct {
	Directory     string
	Mail          string
	Compliance    string
	Collaboration string
}

// DefaultScopes returns the public-cloud resource scopes.
func DefaultScopes() Scopes {
	return Scopes{
		Directory:     "https://graph.microsoft.com/.default",
		Mail:          "https://outlook.office365.com/.default",
		Compliance:    "https://ps.compliance.protection.outlook.com/.default",
		Collaboration: "https://api.spaces.skype.com/.default",
	}
}

// DomainLookup resolves a tenant's primary domain.
type DomainLookup interface {
	PrimaryDomain(ctx context.Context, tenant string, directoryToken model.Secret) (string, error)
}

// OrchestratorOptions groups dependencies for the Orchestrator.
type OrchestratorOptions struct {
	Granter Granter
	Domains DomainLookup
	Cloud   CloudConnector
	Scopes  Scopes
	Logger  *slog.Logger
}

// Orchestrator runs the per-service acquisition strategies for one job.
type Orchestrator struct {
	granter Granter
	domains DomainLookup
	cloud   CloudConnector
	scopes  Scopes
	logger  *slog.Logger
}

var _ core.ConnectionAcquirer = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Granter == nil {
		return nil, errors.New("granter is required")
	}
	if opts.Domains == nil {
		return nil, errors.New("domain lookup is required")
	}
	if opts.Cloud == nil {
		return nil, errors.New("cloud connector is required")
	}
	scopes := opts.Scopes
	defaults := DefaultScopes()
	if scopes.Directory == "" {
		scopes.Directory = defaults.Directory
	}
	if scopes.Mail == "" {
		scopes.Mail = defaults.Mail
	}
	if scopes.Compliance == "" {
		scopes.Compliance = defaults.Compliance
	}
	if scopes.Collaboration == "" {
		scopes.Collaboration = defaults.Collaboration
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		granter: opts.Granter,
		domains: opts.Domains,
		cloud:   opts.Cloud,
		scopes:  scopes,
		logger:  logger.With("component", "credentials"),
	}, nil
}

// acquisition collects concurrent per-service outcomes.
type acquisition struct {
	mu       sync.Mutex
	sessions *model.Sessions
	diag     model.ConnectionDiagnostics
}

func (a *acquisition) connected(svc model.ServiceName, apply func(s *model.Sessions)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	apply(a.sessions)
	a.diag[svc] = model.Connected()
}

func (a *acquisition) failed(svc model.ServiceName, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diag[svc] = model.ConnectionFailed(model.SanitizeError(reason))
}

// Acquire connects the required directory service and then every optional service.
// Optional failures are recorded in the diagnostics; only a missing directory session is fatal.
func (o *Orchestrator) Acquire(
	ctx context.Context,
	creds model.CredentialBundle,
) (*model.Sessions, model.ConnectionDiagnostics, error) {
	acq := &acquisition{
		sessions: &model.Sessions{TenantID: creds.TenantID},
		diag:     model.NewConnectionDiagnostics(),
	}

	dirToken, err := o.directory(ctx, creds)
	if err != nil {
		acq.failed(model.ServiceDirectory, err.Error())
		return nil, acq.diag, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	acq.connected(model.ServiceDirectory, func(s *model.Sessions) { s.Directory = dirToken })

	if !creds.HasAppCredentials() {
		for _, svc := range []model.ServiceName{
			model.ServiceMail, model.ServiceCompliance, model.ServiceCollaboration, model.ServiceCloud,
		} {
			acq.failed(svc, reasonNoAppCredentials)
		}
		o.logger.InfoContext(ctx, "optional services skipped", "reason", reasonNoAppCredentials)
		return acq.sessions, acq.diag, nil
	}

	mailDone := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(mailDone)
		o.mail(ctx, creds, acq)
		return nil
	})
	g.Go(func() error {
		o.compliance(ctx, creds, dirToken, mailDone, acq)
		return nil
	})
	g.Go(func() error {
		o.collaboration(ctx, creds, acq)
		return nil
	})
	g.Go(func() error {
		o.cloudService(ctx, creds, acq)
		return nil
	})
	_ = g.Wait()

	o.logger.InfoContext(ctx, "connections acquired", "sessions", acq.sessions)
	return acq.sessions, acq.diag, nil
}

// directory tries app credentials first, then the caller-forwarded token.
func (o *Orchestrator) directory(ctx context.Context, creds model.CredentialBundle) (model.Secret, error) {
	var grantErr error
	if creds.HasAppCredentials() {
		tok, err := o.granter.Grant(ctx, o.grant(creds, o.scopes.Directory))
		if err == nil {
			return tok, nil
		}
		grantErr = err
		o.logger.WarnContext(ctx, "directory grant failed", "error", err,
			"fallback_available", creds.BearerToken != "")
	}
	if creds.BearerToken != "" {
		return creds.BearerToken, nil
	}
	if grantErr != nil {
		return "", grantErr
	}
	return "", errors.New("neither application credentials nor a bearer token were provided")
}

func (o *Orchestrator) mail(ctx context.Context, creds model.CredentialBundle, acq *acquisition) {
	tok, err := o.granter.Grant(ctx, o.grant(creds, o.scopes.Mail))
	if err != nil {
		acq.failed(model.ServiceMail, err.Error())
		return
	}
	acq.connected(model.ServiceMail, func(s *model.Sessions) { s.Mail = tok })
}

// compliance resolves the primary domain, then reuses the mail token when mail connected.
func (o *Orchestrator) compliance(
	ctx context.Context,
	creds model.CredentialBundle,
	dirToken model.Secret,
	mailDone <-chan struct{},
	acq *acquisition,
) {
	domain, err := o.domains.PrimaryDomain(ctx, creds.TenantID, dirToken)
	if err != nil {
		acq.failed(model.ServiceCompliance, "resolve primary domain: "+err.Error())
		return
	}

	select {
	case <-mailDone:
	case <-ctx.Done():
		acq.failed(model.ServiceCompliance, ctx.Err().Error())
		return
	}

	acq.mu.Lock()
	tok := acq.sessions.Mail
	acq.mu.Unlock()
	if tok == "" {
		tok, err = o.granter.Grant(ctx, o.grant(creds, o.scopes.Compliance))
		if err != nil {
			acq.failed(model.ServiceCompliance, err.Error())
			return
		}
	}
	acq.connected(model.ServiceCompliance, func(s *model.Sessions) {
		s.Compliance = tok
		s.ComplianceDomain = domain
	})
}

// collaboration always takes fresh grants, even when the caller forwarded a token.
func (o *Orchestrator) collaboration(ctx context.Context, creds model.CredentialBundle, acq *acquisition) {
	dirTok, err := o.granter.Grant(ctx, o.grant(creds, o.scopes.Directory))
	if err != nil {
		acq.failed(model.ServiceCollaboration, err.Error())
		return
	}
	collabTok, err := o.granter.Grant(ctx, o.grant(creds, o.scopes.Collaboration))
	if err != nil {
		acq.failed(model.ServiceCollaboration, err.Error())
		return
	}
	acq.connected(model.ServiceCollaboration, func(s *model.Sessions) {
		s.CollaborationDirectory = dirTok
		s.Collaboration = collabTok
	})
}

func (o *Orchestrator) cloudService(ctx context.Context, creds model.CredentialBundle, acq *acquisition) {
	tok, err := o.cloud.Connect(ctx, creds)
	if err != nil {
		acq.failed(model.ServiceCloud, err.Error())
		return
	}
	acq.connected(model.ServiceCloud, func(s *model.Sessions) { s.Cloud = tok })
}

func (o *Orchestrator) grant(creds model.CredentialBundle, scope string) GrantRequest {
	return GrantRequest{
		TenantID:     creds.TenantID,
		ClientID:     creds.AppClientID,
		ClientSecret: creds.AppClientSecret,
		Scope:        scope,
	}
}
