package credentials

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultAuthority is the public identity platform authority.
const DefaultAuthority = "https://login.microsoftonline.com"

// DiscoveryDocument is the subset of the OIDC discovery document the resolver relies on.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// EndpointResolver finds a tenant's token endpoint through OIDC discovery and caches it per tenant.
type EndpointResolver struct {
	authority  string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// EndpointResolverOptions configures an EndpointResolver.
type EndpointResolverOptions struct {
	Authority  string
	HTTPClient *http.Client // Optional, defaults to a 30s client
	Logger     *slog.Logger
}

// NewEndpointResolver creates a resolver for the given authority.
func NewEndpointResolver(opts EndpointResolverOptions) *EndpointResolver {
	authority := strings.TrimSuffix(strings.TrimSpace(opts.Authority), "/")
	if authority == "" {
		authority = DefaultAuthority
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointResolver{
		authority:  authority,
		httpClient: httpClient,
		logger:     logger.With("component", "token_endpoint_resolver"),
		cache:      make(map[string]string),
	}
}

// TokenURL returns the token endpoint for tenant. Discovery failures fall back to the
// conventional v2.0 endpoint and are retried on the next call.
func (r *EndpointResolver) TokenURL(ctx context.Context, tenant string) string {
	key := strings.ToLower(tenant)
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached
	}

	tenantPath := r.authority + "/" + url.PathEscape(tenant)
	fallback := tenantPath + "/oauth2/v2.0/token"

	// The advertised issuer names the tenant by id even when it is looked up by domain.
	issuer := tenantPath + "/v2.0"
	dctx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	dctx = gooidc.InsecureIssuerURLContext(dctx, issuer)
	op, err := gooidc.NewProvider(dctx, issuer)
	if err != nil {
		r.logger.WarnContext(ctx, "token endpoint discovery failed, using fallback",
			"tenant", tenant, "error", err)
		return fallback
	}
	tokenURL := op.Endpoint().TokenURL
	if tokenURL == "" {
		return fallback
	}

	r.mu.Lock()
	r.cache[key] = tokenURL
	r.mu.Unlock()
	return tokenURL
}
