package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tenantscan/internal/domain/model"
)

func newTestGranter(fa *fakeAuthority) *ClientCredentialsGranter {
	endpoints := NewEndpointResolver(EndpointResolverOptions{Authority: fa.srv.URL, HTTPClient: fa.srv.Client()})
	return NewClientCredentialsGranter(endpoints, fa.srv.Client(), 0)
}

func TestClientCredentialsGranterGrant(t *testing.T) {
	fa := newFakeAuthority(t)
	fa.tokens["https://graph.microsoft.com/.default"] = "graph-token"
	g := newTestGranter(fa)

	tok, err := g.Grant(context.Background(), GrantRequest{
		TenantID:     "contoso.onmicrosoft.com",
		ClientID:     "app-id",
		ClientSecret: "s3cret",
		Scope:        "https://graph.microsoft.com/.default",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Secret("graph-token"), tok)
	assert.Equal(t, int32(1), fa.tokenCalls.Load())
}

func TestClientCredentialsGranterRejected(t *testing.T) {
	fa := newFakeAuthority(t)
	g := newTestGranter(fa)

	_, err := g.Grant(context.Background(), GrantRequest{
		TenantID:     "contoso.onmicrosoft.com",
		ClientID:     "app-id",
		ClientSecret: "wrong",
		Scope:        "scope/.default",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
	assert.NotContains(t, err.Error(), "wrong")
}

func TestClientCredentialsGranterValidation(t *testing.T) {
	g := NewClientCredentialsGranter(nil, nil, 0)
	tests := []struct {
		name string
		req  GrantRequest
		want string
	}{
		{"missing tenant", GrantRequest{ClientID: "a", ClientSecret: "b", Scope: "s"}, "tenant id"},
		{"missing secret", GrantRequest{TenantID: "t", ClientID: "a", Scope: "s"}, "application credentials"},
		{"missing scope", GrantRequest{TenantID: "t", ClientID: "a", ClientSecret: "b"}, "scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Grant(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
