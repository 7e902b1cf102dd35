package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/tenantscan/internal/domain/model"
)

// GrantRequest describes one client-credentials grant.
type GrantRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret model.Secret
	Scope        string
}

// Granter exchanges application credentials for an access token.
type Granter interface {
	Grant(ctx context.Context, req GrantRequest) (model.Secret, error)
}

// TokenURLResolver resolves a tenant's token endpoint.
type TokenURLResolver interface {
	TokenURL(ctx context.Context, tenant string) string
}

// ClientCredentialsGranter performs OAuth2 client-credentials grants against discovered endpoints.
type ClientCredentialsGranter struct {
	endpoints  TokenURLResolver
	httpClient *http.Client
	timeout    time.Duration
}

// NewClientCredentialsGranter creates a granter. A zero timeout means 30s per grant.
func NewClientCredentialsGranter(endpoints TokenURLResolver, httpClient *http.Client, timeout time.Duration) *ClientCredentialsGranter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClientCredentialsGranter{endpoints: endpoints, httpClient: httpClient, timeout: timeout}
}

// Grant requests a token for req.Scope.
func (g *ClientCredentialsGranter) Grant(ctx context.Context, req GrantRequest) (model.Secret, error) {
	switch {
	case strings.TrimSpace(req.TenantID) == "":
		return "", errors.New("tenant id is required for an application grant")
	case req.ClientID == "" || req.ClientSecret == "":
		return "", errors.New("application credentials are required")
	case req.Scope == "":
		return "", errors.New("scope is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := clientcredentials.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret.Reveal(),
		TokenURL:     g.endpoints.TokenURL(ctx, req.TenantID),
		Scopes:       []string{req.Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, g.httpClient))
	if err != nil {
		return "", fmt.Errorf("client credentials grant for %s: %w", req.Scope, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("client credentials grant for %s: empty access token", req.Scope)
	}
	return model.Secret(tok.AccessToken), nil
}
