package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tenantscan/internal/domain/model"
)

type fakeOrgClient struct {
	domains []VerifiedDomain
	err     error
	calls   int
}

func (f *fakeOrgClient) VerifiedDomains(_ context.Context, _ model.Secret) ([]VerifiedDomain, error) {
	f.calls++
	return f.domains, f.err
}

func TestIsDomainName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"contoso.com", true},
		{"Contoso.OnMicrosoft.com", true},
		{"fabrikam.co.uk", true},
		{"72f988bf-86f1-41af-91ab-2d7cd011db47", false},
		{"localhost", false},
		{"", false},
		{"com", false},
		{"co.uk", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDomainName(tt.in))
		})
	}
}

func TestPrimaryDomainShortCircuitsDomainNames(t *testing.T) {
	org := &fakeOrgClient{}
	r := NewDomainResolver(org)

	got, err := r.PrimaryDomain(context.Background(), " Contoso.com ", "")
	require.NoError(t, err)
	assert.Equal(t, "contoso.com", got)
	assert.Zero(t, org.calls)
}

func TestPrimaryDomainPrefersDefaultThenInitial(t *testing.T) {
	tenant := "72f988bf-86f1-41af-91ab-2d7cd011db47"

	org := &fakeOrgClient{domains: []VerifiedDomain{
		{Name: "contoso.onmicrosoft.com", IsInitial: true},
		{Name: "contoso.com", IsDefault: true},
	}}
	got, err := NewDomainResolver(org).PrimaryDomain(context.Background(), tenant, "dir-token")
	require.NoError(t, err)
	assert.Equal(t, "contoso.com", got)

	org = &fakeOrgClient{domains: []VerifiedDomain{
		{Name: "other.com"},
		{Name: "contoso.onmicrosoft.com", IsInitial: true},
	}}
	got, err = NewDomainResolver(org).PrimaryDomain(context.Background(), tenant, "dir-token")
	require.NoError(t, err)
	assert.Equal(t, "contoso.onmicrosoft.com", got)
}

func TestPrimaryDomainErrors(t *testing.T) {
	tenant := "72f988bf-86f1-41af-91ab-2d7cd011db47"

	_, err := NewDomainResolver(&fakeOrgClient{}).PrimaryDomain(context.Background(), tenant, "")
	require.Error(t, err)

	_, err = NewDomainResolver(&fakeOrgClient{domains: []VerifiedDomain{{Name: "x.com"}}}).
		PrimaryDomain(context.Background(), tenant, "dir-token")
	require.ErrorIs(t, err, ErrNoVerifiedDomain)

	boom := errors.New("forbidden")
	_, err = NewDomainResolver(&fakeOrgClient{err: boom}).PrimaryDomain(context.Background(), tenant, "dir-token")
	require.ErrorIs(t, err, boom)
}

func TestStaticTokenCredential(t *testing.T) {
	tok, err := staticTokenCredential{token: "abc"}.GetToken(context.Background(), policy.TokenRequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Token)
	assert.False(t, tok.ExpiresOn.IsZero())
}
