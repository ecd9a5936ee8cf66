package sso

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a configuration is internally consistent for its provider
// kind. It does not gate on Enabled or TestMode; CanEnable does.
func (c *Configuration) Validate() error {
	if c.WorkspaceID == "" {
		return NewConfigurationError(CodeMissingField, "workspace_id is required")
	}
	if c.Name == "" {
		return NewConfigurationError(CodeMissingField, "name is required")
	}

	switch c.Provider {
	case ProviderSAML:
		if err := c.validateSAML(); err != nil {
			return err
		}
	case ProviderOIDC:
		if err := c.validateOIDC(); err != nil {
			return err
		}
	default:
		return NewConfigurationError(CodeInvalidProvider, "unsupported provider %q", c.Provider)
	}

	if c.Mapping.EmailPath == "" {
		return NewConfigurationError(CodeMissingField, "mapping.email_path is required")
	}
	if c.JITProvisioning && !validRole(c.JITDefaultRole) {
		return NewConfigurationError(CodeInvalidRole, "jit_default_role %q is not a valid role", c.JITDefaultRole)
	}
	for _, rule := range c.GroupRoles {
		if rule.IdPGroup == "" {
			return NewConfigurationError(CodeMissingField, "group rule with empty idp_group")
		}
		if !validRole(rule.Role) {
			return NewConfigurationError(CodeInvalidRole, "group rule role %q is not a valid role", rule.Role)
		}
	}
	return nil
}

func (c *Configuration) validateSAML() error {
	if c.SAML == nil {
		return NewConfigurationError(CodeMissingField, "saml settings are required for provider=saml")
	}
	switch {
	case c.SAML.EntityID == "":
		return NewConfigurationError(CodeMissingField, "saml.entity_id is required")
	case c.SAML.SSOURL == "":
		return NewConfigurationError(CodeMissingField, "saml.sso_url is required")
	case c.SAML.Certificate == "":
		return NewConfigurationError(CodeMissingField, "saml.certificate is required")
	}
	if err := validURL(c.SAML.SSOURL); err != nil {
		return NewConfigurationError(CodeMissingField, "saml.sso_url is not a valid URL: %v", err)
	}
	return nil
}

func (c *Configuration) validateOIDC() error {
	if c.OIDC == nil {
		return NewConfigurationError(CodeMissingField, "oidc settings are required for provider=oidc")
	}
	switch {
	case c.OIDC.ClientID == "":
		return NewConfigurationError(CodeMissingField, "oidc.client_id is required")
	case c.OIDC.ClientSecret == "":
		return NewConfigurationError(CodeMissingField, "oidc.client_secret is required")
	}
	if c.OIDC.Issuer == "" {
		// Without discovery, every endpoint the flow touches must be
		// configured explicitly.
		switch {
		case c.OIDC.AuthorizationEndpoint == "":
			return NewConfigurationError(CodeMissingField, "oidc.authorization_endpoint is required when no issuer is set")
		case c.OIDC.TokenEndpoint == "":
			return NewConfigurationError(CodeMissingField, "oidc.token_endpoint is required when no issuer is set")
		case c.OIDC.JWKSURI == "":
			return NewConfigurationError(CodeMissingField, "oidc.jwks_uri is required when no issuer is set")
		}
	}
	return nil
}

// CanEnable reports whether the configuration may transition to enabled.
// Enabling requires test mode to have been turned off first and the
// configuration to validate completely.
func (c *Configuration) CanEnable() error {
	if c.TestMode {
		return NewConfigurationError(CodeEnableInTestMode,
			"configuration cannot be enabled while test_mode is on; complete a test login and turn test_mode off first")
	}
	return c.Validate()
}

// EmailDomainAllowed applies the configuration's allow/block lists to the
// domain of an authenticated email address. The block list wins over the
// allow list.
func (c *Configuration) EmailDomainAllowed(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return NewMappingError(CodeMissingEmail, "resolved email %q has no domain", email)
	}
	domain := strings.ToLower(email[at+1:])

	for _, blocked := range c.BlockedDomains {
		if strings.EqualFold(blocked, domain) {
			return NewValidationError(CodeEmailDomainBlocked, nil, "email domain %q is blocked", domain)
		}
	}
	if len(c.AllowedDomains) > 0 {
		for _, allowed := range c.AllowedDomains {
			if strings.EqualFold(allowed, domain) {
				return nil
			}
		}
		return NewValidationError(CodeEmailDomainNotAllowed, nil, "email domain %q is not in the allowed list", domain)
	}
	return nil
}

func validRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

func validURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
