package sso

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver serves TXT records from a map; nil slices report NXDOMAIN.
type fakeResolver struct {
	records map[string][]string
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	records, ok := f.records[name]
	if !ok {
		return nil, errors.New("no such host")
	}
	return records, nil
}

func newTestRouter(t *testing.T) (*DomainRouter, *MemoryRoutingStore, *MemoryConfigStore, *fakeResolver) {
	t.Helper()
	routings := NewMemoryRoutingStore()
	configs := NewMemoryConfigStore()
	resolver := &fakeResolver{records: make(map[string][]string)}
	return NewDomainRouter(routings, configs, resolver), routings, configs, resolver
}

func TestAddRouting(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	ctx := context.Background()

	routing, err := router.AddRouting(ctx, "ws-1", "cfg-1", "  Corp.Example  ")
	require.NoError(t, err)
	assert.Equal(t, "corp.example", routing.Domain)
	assert.NotEmpty(t, routing.ID)
	assert.NotEmpty(t, routing.VerificationToken)
	assert.False(t, routing.Verified)
}

func TestAddRoutingDomainTaken(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	ctx := context.Background()

	first, err := router.AddRouting(ctx, "ws-1", "cfg-1", "corp.example")
	require.NoError(t, err)

	// Domains are unique across workspaces, not per workspace.
	_, err = router.AddRouting(ctx, "ws-2", "cfg-2", "corp.example")
	require.Error(t, err)
	assert.Equal(t, CodeDomainTaken, CodeOf(err))

	// The failed claim must not disturb the existing routing.
	kept, err := router.routings.GetByDomain(ctx, "corp.example")
	require.NoError(t, err)
	assert.Equal(t, first.ID, kept.ID)
	assert.Equal(t, "ws-1", kept.WorkspaceID)

	// A different domain for the second workspace succeeds.
	_, err = router.AddRouting(ctx, "ws-2", "cfg-2", "other.example")
	assert.NoError(t, err)
}

func TestAddRoutingInvalidDomain(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	ctx := context.Background()

	for _, domain := range []string{"", "nodot", "has space.example", "user@corp.example", "corp.example/path"} {
		_, err := router.AddRouting(ctx, "ws-1", "cfg-1", domain)
		require.Error(t, err, "domain %q", domain)
		assert.Equal(t, CodeInvalidDomain, CodeOf(err))
	}
}

func TestVerifyDomainDNS(t *testing.T) {
	router, _, _, resolver := newTestRouter(t)
	ctx := context.Background()

	routing, err := router.AddRouting(ctx, "ws-1", "cfg-1", "corp.example")
	require.NoError(t, err)

	assert.Equal(t, "_docusynth-verification.corp.example", router.DNSRecordName(routing.Domain))
	resolver.records[router.DNSRecordName(routing.Domain)] = []string{
		"unrelated-record",
		"docusynth-verify=" + routing.VerificationToken,
	}

	verified, err := router.VerifyDomain(ctx, routing.ID, false)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, "dns_txt", verified.VerificationMethod)
	require.NotNil(t, verified.VerifiedAt)
}

func TestVerifyDomainDNSMismatch(t *testing.T) {
	router, _, _, resolver := newTestRouter(t)
	ctx := context.Background()

	routing, err := router.AddRouting(ctx, "ws-1", "cfg-1", "corp.example")
	require.NoError(t, err)
	resolver.records[router.DNSRecordName(routing.Domain)] = []string{"docusynth-verify=wrong-token"}

	_, err = router.VerifyDomain(ctx, routing.ID, false)
	require.Error(t, err)
	assert.Equal(t, CodeDomainVerificationFailed, CodeOf(err))

	// Lookup failure reports the same code.
	other, err := router.AddRouting(ctx, "ws-1", "cfg-1", "other.example")
	require.NoError(t, err)
	_, err = router.VerifyDomain(ctx, other.ID, false)
	require.Error(t, err)
	assert.Equal(t, CodeDomainVerificationFailed, CodeOf(err))
}

func TestVerifyDomainManualOverride(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	ctx := context.Background()

	routing, err := router.AddRouting(ctx, "ws-1", "cfg-1", "corp.example")
	require.NoError(t, err)

	// No DNS record exists; the override records the bypass as the method.
	verified, err := router.VerifyDomain(ctx, routing.ID, true)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, "manual", verified.VerificationMethod)
}

func TestCheckSSORequiredByEmail(t *testing.T) {
	router, _, configs, _ := newTestRouter(t)
	ctx := context.Background()

	cfg := validSAMLConfig()
	cfg.Enabled = true
	cfg.EnforceSSO = true
	require.NoError(t, configs.Create(ctx, cfg))

	routing, err := router.AddRouting(ctx, "ws-1", cfg.ID, "corp.example")
	require.NoError(t, err)

	// Unverified routing does not require SSO.
	result, err := router.CheckSSORequired(ctx, "jane@corp.example")
	require.NoError(t, err)
	assert.False(t, result.Required)

	_, err = router.VerifyDomain(ctx, routing.ID, true)
	require.NoError(t, err)

	result, err = router.CheckSSORequired(ctx, "jane@corp.example")
	require.NoError(t, err)
	assert.True(t, result.Required)
	assert.Equal(t, cfg.ID, result.ConfigID)
	assert.Equal(t, ProviderSAML, result.Provider)

	// Unknown domain is simply not required.
	result, err = router.CheckSSORequired(ctx, "jane@elsewhere.example")
	require.NoError(t, err)
	assert.False(t, result.Required)
}

func TestCheckSSORequiredDisabledConfig(t *testing.T) {
	router, _, configs, _ := newTestRouter(t)
	ctx := context.Background()

	cfg := validSAMLConfig()
	cfg.Enabled = false
	cfg.EnforceSSO = true
	require.NoError(t, configs.Create(ctx, cfg))

	routing, err := router.AddRouting(ctx, "ws-1", cfg.ID, "corp.example")
	require.NoError(t, err)
	_, err = router.VerifyDomain(ctx, routing.ID, true)
	require.NoError(t, err)

	result, err := router.CheckSSORequired(ctx, "jane@corp.example")
	require.NoError(t, err)
	assert.False(t, result.Required)
}

func TestCheckSSORequiredByWorkspace(t *testing.T) {
	router, _, configs, _ := newTestRouter(t)
	ctx := context.Background()

	enforcing := validSAMLConfig()
	enforcing.Enabled = true
	enforcing.EnforceSSO = true
	require.NoError(t, configs.Create(ctx, enforcing))

	optional := validOIDCConfig()
	optional.Enabled = true
	require.NoError(t, configs.Create(ctx, optional))

	result, err := router.CheckSSORequired(ctx, "ws-1")
	require.NoError(t, err)
	assert.True(t, result.Required)
	assert.Equal(t, enforcing.ID, result.ConfigID)

	result, err = router.CheckSSORequired(ctx, "ws-other")
	require.NoError(t, err)
	assert.False(t, result.Required)
}

func TestDeleteStaleUnverified(t *testing.T) {
	router, routings, _, _ := newTestRouter(t)
	ctx := context.Background()

	stale, err := router.AddRouting(ctx, "ws-1", "cfg-1", "stale.example")
	require.NoError(t, err)

	fresh, err := router.AddRouting(ctx, "ws-1", "cfg-1", "fresh.example")
	require.NoError(t, err)

	verified, err := router.AddRouting(ctx, "ws-1", "cfg-1", "verified.example")
	require.NoError(t, err)
	require.NoError(t, routings.MarkVerified(ctx, verified.ID, "manual"))

	// Everything was just created; a cutoff after creation catches the two
	// unverified claims and leaves the verified one alone.
	deleted, err := routings.DeleteStaleUnverified(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = routings.GetByID(ctx, stale.ID)
	assert.Equal(t, CodeDomainNotFound, CodeOf(err))
	_, err = routings.GetByID(ctx, fresh.ID)
	assert.Equal(t, CodeDomainNotFound, CodeOf(err))

	kept, err := routings.GetByID(ctx, verified.ID)
	require.NoError(t, err)
	assert.True(t, kept.Verified)

	// The reclaimed domain can be claimed again.
	_, err = router.AddRouting(ctx, "ws-2", "cfg-2", "stale.example")
	require.NoError(t, err)
}
