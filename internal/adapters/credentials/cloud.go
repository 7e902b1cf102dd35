package credentials

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/subscription/armsubscription"

	"github.com/target/tenantscan/internal/domain/model"
)

// DefaultManagementScope is the resource-management scope used for the cloud service.
const DefaultManagementScope = "https://management.azure.com/.default"

// CloudConnector acquires a verified cloud-resource session.
type CloudConnector interface {
	Connect(ctx context.Context, creds model.CredentialBundle) (model.Secret, error)
}

// ServicePrincipalConnector authenticates a service principal and proves the session by listing
// the subscriptions it can see.
type ServicePrincipalConnector struct {
	authorityHost string
	scope         string
}

// NewServicePrincipalConnector creates a connector. An empty authority uses the public cloud.
func NewServicePrincipalConnector(authorityHost, scope string) *ServicePrincipalConnector {
	if scope == "" {
		scope = DefaultManagementScope
	}
	return &ServicePrincipalConnector{authorityHost: authorityHost, scope: scope}
}

// Connect implements CloudConnector.
func (c *ServicePrincipalConnector) Connect(ctx context.Context, creds model.CredentialBundle) (model.Secret, error) {
	var opts *azidentity.ClientSecretCredentialOptions
	if c.authorityHost != "" {
		opts = &azidentity.ClientSecretCredentialOptions{
			ClientOptions: azcore.ClientOptions{
				Cloud: cloud.Configuration{ActiveDirectoryAuthorityHost: c.authorityHost},
			},
		}
	}
	cred, err := azidentity.NewClientSecretCredential(
		creds.TenantID,
		creds.AppClientID,
		creds.AppClientSecret.Reveal(),
		opts,
	)
	if err != nil {
		return "", fmt.Errorf("create service principal credential: %w", err)
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
	if err != nil {
		return "", fmt.Errorf("acquire management token: %w", err)
	}

	client, err := armsubscription.NewSubscriptionsClient(cred, nil)
	if err != nil {
		return "", fmt.Errorf("create subscriptions client: %w", err)
	}
	pager := client.NewListPager(nil)
	if pager.More() {
		if _, err = pager.NextPage(ctx); err != nil {
			return "", fmt.Errorf("list subscriptions: %w", err)
		}
	}
	return model.Secret(token.Token), nil
}
