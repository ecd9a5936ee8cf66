package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSAMLConfig() *Configuration {
	return &Configuration{
		ID:          "cfg-1",
		WorkspaceID: "ws-1",
		Name:        "Corp IdP",
		Provider:    ProviderSAML,
		SAML: &SAMLSettings{
			EntityID:    "https://idp.example.com",
			SSOURL:      "https://idp.example.com/sso",
			Certificate: "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----",
		},
		Mapping: AttributeMapping{EmailPath: "email"},
	}
}

func validOIDCConfig() *Configuration {
	return &Configuration{
		ID:          "cfg-2",
		WorkspaceID: "ws-1",
		Name:        "Corp OIDC",
		Provider:    ProviderOIDC,
		OIDC: &OIDCSettings{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Issuer:       "https://accounts.example.com",
		},
		Mapping: AttributeMapping{EmailPath: "email"},
	}
}

func TestConfigurationValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Configuration)
		config   *Configuration
		wantCode string
	}{
		{
			name:   "valid saml",
			config: validSAMLConfig(),
		},
		{
			name:   "valid oidc",
			config: validOIDCConfig(),
		},
		{
			name:     "missing workspace",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.WorkspaceID = "" },
			wantCode: CodeMissingField,
		},
		{
			name:     "unknown provider",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.Provider = "ldap" },
			wantCode: CodeInvalidProvider,
		},
		{
			name:     "saml without settings",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.SAML = nil },
			wantCode: CodeMissingField,
		},
		{
			name:     "saml without certificate",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.SAML.Certificate = "" },
			wantCode: CodeMissingField,
		},
		{
			name:     "saml with bad sso url",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.SAML.SSOURL = "not a url" },
			wantCode: CodeMissingField,
		},
		{
			name:     "oidc without client id",
			config:   validOIDCConfig(),
			mutate:   func(c *Configuration) { c.OIDC.ClientID = "" },
			wantCode: CodeMissingField,
		},
		{
			name:   "oidc without issuer but explicit endpoints",
			config: validOIDCConfig(),
			mutate: func(c *Configuration) {
				c.OIDC.Issuer = ""
				c.OIDC.AuthorizationEndpoint = "https://accounts.example.com/authorize"
				c.OIDC.TokenEndpoint = "https://accounts.example.com/token"
				c.OIDC.JWKSURI = "https://accounts.example.com/jwks"
			},
		},
		{
			name:     "oidc without issuer or endpoints",
			config:   validOIDCConfig(),
			mutate:   func(c *Configuration) { c.OIDC.Issuer = "" },
			wantCode: CodeMissingField,
		},
		{
			name:     "missing email path",
			config:   validSAMLConfig(),
			mutate:   func(c *Configuration) { c.Mapping.EmailPath = "" },
			wantCode: CodeMissingField,
		},
		{
			name:   "invalid jit default role",
			config: validSAMLConfig(),
			mutate: func(c *Configuration) {
				c.JITProvisioning = true
				c.JITDefaultRole = "superuser"
			},
			wantCode: CodeInvalidRole,
		},
		{
			name:   "invalid group rule role",
			config: validSAMLConfig(),
			mutate: func(c *Configuration) {
				c.GroupRoles = []GroupRoleRule{{IdPGroup: "eng", Role: "root"}}
			},
			wantCode: CodeInvalidRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindConfiguration, KindOf(err))
			assert.Equal(t, tt.wantCode, CodeOf(err))
		})
	}
}

func TestCanEnable(t *testing.T) {
	cfg := validSAMLConfig()
	cfg.TestMode = true

	err := cfg.CanEnable()
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, CodeEnableInTestMode, CodeOf(err))

	cfg.TestMode = false
	assert.NoError(t, cfg.CanEnable())
}

func TestEmailDomainAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		blocked  []string
		email    string
		wantCode string
	}{
		{
			name:  "no lists allows everything",
			email: "jane@anywhere.example",
		},
		{
			name:    "allowed domain",
			allowed: []string{"corp.example"},
			email:   "jane@corp.example",
		},
		{
			name:     "not on allow list",
			allowed:  []string{"corp.example"},
			email:    "jane@other.example",
			wantCode: CodeEmailDomainNotAllowed,
		},
		{
			name:     "blocked domain",
			blocked:  []string{"rival.example"},
			email:    "jane@rival.example",
			wantCode: CodeEmailDomainBlocked,
		},
		{
			name:     "block list wins over allow list",
			allowed:  []string{"corp.example"},
			blocked:  []string{"corp.example"},
			email:    "jane@corp.example",
			wantCode: CodeEmailDomainBlocked,
		},
		{
			name:    "domain comparison is case insensitive",
			allowed: []string{"corp.example"},
			email:   "Jane@CORP.Example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSAMLConfig()
			cfg.AllowedDomains = tt.allowed
			cfg.BlockedDomains = tt.blocked

			err := cfg.EmailDomainAllowed(tt.email)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
		})
	}
}
