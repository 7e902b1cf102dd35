package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"
	absauth "github.com/microsoft/kiota-abstractions-go/authentication"
	authentication "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"golang.org/x/net/publicsuffix"

	"github.com/target/tenantscan/internal/domain/model"
)

// ErrNoVerifiedDomain is returned when the directory lists no usable domain for the tenant.
var ErrNoVerifiedDomain = errors.New("tenant has no default or initial verified domain")

// VerifiedDomain is one domain registered to the tenant's organization.
type VerifiedDomain struct {
	Name      string
	IsDefault bool
	IsInitial bool
}

// OrganizationClient lists the verified domains of the signed-in tenant.
type OrganizationClient interface {
	VerifiedDomains(ctx context.Context, directoryToken model.Secret) ([]VerifiedDomain, error)
}

// DomainResolver resolves a tenant identifier to its primary domain.
type DomainResolver struct {
	org OrganizationClient
}

// NewDomainResolver creates a resolver backed by org. A nil org uses Microsoft Graph.
func NewDomainResolver(org OrganizationClient) *DomainResolver {
	if org == nil {
		org = GraphOrganizationClient{}
	}
	return &DomainResolver{org: org}
}

// PrimaryDomain returns tenant unchanged when it already is a registrable domain name.
// Otherwise it asks the directory for the default verified domain, then the initial one.
func (r *DomainResolver) PrimaryDomain(ctx context.Context, tenant string, directoryToken model.Secret) (string, error) {
	if IsDomainName(tenant) {
		return strings.ToLower(strings.TrimSpace(tenant)), nil
	}
	if directoryToken == "" {
		return "", errors.New("directory token is required to resolve the primary domain")
	}
	domains, err := r.org.VerifiedDomains(ctx, directoryToken)
	if err != nil {
		return "", fmt.Errorf("list verified domains: %w", err)
	}
	var initial string
	for _, d := range domains {
		if d.IsDefault && d.Name != "" {
			return d.Name, nil
		}
		if d.IsInitial && initial == "" {
			initial = d.Name
		}
	}
	if initial != "" {
		return initial, nil
	}
	return "", ErrNoVerifiedDomain
}

// IsDomainName reports whether s is a domain under an ICANN-managed public suffix.
func IsDomainName(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || !strings.Contains(s, ".") {
		return false
	}
	if _, err := uuid.Parse(s); err == nil {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(s); err != nil {
		return false
	}
	_, icann := publicsuffix.PublicSuffix(s)
	return icann
}

// GraphOrganizationClient reads GET /organization through the Microsoft Graph SDK.
type GraphOrganizationClient struct{}

// VerifiedDomains implements OrganizationClient.
func (GraphOrganizationClient) VerifiedDomains(ctx context.Context, directoryToken model.Secret) ([]VerifiedDomain, error) {
	tokenProvider, err := authentication.NewAzureIdentityAccessTokenProvider(staticTokenCredential{token: directoryToken})
	if err != nil {
		return nil, err
	}
	authProvider := absauth.NewBaseBearerTokenAuthenticationProvider(tokenProvider)
	requestAdaptor, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, err
	}

	graphClient := msgraphsdk.NewGraphServiceClient(requestAdaptor)
	result, err := graphClient.Organization().Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	var out []VerifiedDomain
	for _, org := range result.GetValue() {
		for _, d := range org.GetVerifiedDomains() {
			if d.GetName() == nil {
				continue
			}
			out = append(out, VerifiedDomain{
				Name:      *d.GetName(),
				IsDefault: d.GetIsDefault() != nil && *d.GetIsDefault(),
				IsInitial: d.GetIsInitial() != nil && *d.GetIsInitial(),
			})
		}
	}
	return out, nil
}

// staticTokenCredential hands an already acquired access token to the Azure SDK.
type staticTokenCredential struct {
	token model.Secret
}

func (c staticTokenCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if c.token == "" {
		return azcore.AccessToken{}, errors.New("no access token available")
	}
	return azcore.AccessToken{Token: c.token.Reveal(), ExpiresOn: time.Now().Add(time.Hour)}, nil
}
