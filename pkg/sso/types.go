package sso

import "time"

// Provider is the federation protocol a configuration speaks.
type Provider string

const (
	ProviderSAML Provider = "saml"
	ProviderOIDC Provider = "oidc"
)

// Workspace roles assignable through SSO.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// ValidRoles lists the roles a group rule or JIT default may assign.
var ValidRoles = []string{RoleOwner, RoleAdmin, RoleEditor, RoleViewer}

// StateTTL is how long an initiated login attempt stays valid.
const StateTTL = 10 * time.Minute

// Configuration is one workspace's SSO setup for a single IdP.
type Configuration struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Name        string   `json:"name"`
	Provider    Provider `json:"provider"`

	SAML *SAMLSettings `json:"saml,omitempty"`
	OIDC *OIDCSettings `json:"oidc,omitempty"`

	Mapping    AttributeMapping `json:"mapping"`
	GroupRoles []GroupRoleRule  `json:"group_roles,omitempty"`

	AllowedDomains []string `json:"allowed_domains,omitempty"`
	BlockedDomains []string `json:"blocked_domains,omitempty"`

	EnforceSSO          bool `json:"enforce_sso"`
	AllowBypassForOwner bool `json:"allow_bypass_for_owner"`

	JITProvisioning bool   `json:"jit_provisioning"`
	JITDefaultRole  string `json:"jit_default_role"`

	// New configurations start with TestMode on and Enabled off. Enabling
	// is rejected while TestMode is still set.
	Enabled  bool `json:"enabled"`
	TestMode bool `json:"test_mode"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SAMLSettings holds the IdP-side SAML trust material and endpoints.
type SAMLSettings struct {
	// EntityID is the IdP issuer.
	EntityID string `json:"entity_id"`
	SSOURL   string `json:"sso_url"`
	SLOUrl   string `json:"slo_url,omitempty"`
	// Certificate is the PEM-encoded IdP signing certificate.
	Certificate        string `json:"certificate"`
	SignRequests       bool   `json:"sign_requests"`
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`
	DigestAlgorithm    string `json:"digest_algorithm,omitempty"`
	NameIDFormat       string `json:"name_id_format,omitempty"`
}

// OIDCSettings holds the relying-party registration with an OIDC provider.
// Either Issuer is set and endpoints come from discovery, or the endpoints
// are configured explicitly.
type OIDCSettings struct {
	ClientID string `json:"client_id"`
	// ClientSecret is write-only through the API; responses strip it.
	ClientSecret string `json:"client_secret,omitempty"`

	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	UserInfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`

	Scopes  []string `json:"scopes,omitempty"`
	UsePKCE bool     `json:"use_pkce"`
}

// AttributeMapping configures dot-notation claim paths per profile field.
// EmailPath is the only required mapping.
type AttributeMapping struct {
	EmailPath     string `json:"email_path"`
	NamePath      string `json:"name_path,omitempty"`
	FirstNamePath string `json:"first_name_path,omitempty"`
	LastNamePath  string `json:"last_name_path,omitempty"`
	GroupsPath    string `json:"groups_path,omitempty"`
	AvatarPath    string `json:"avatar_path,omitempty"`
}

// GroupRoleRule maps one IdP group to a workspace role. Rules are ordered;
// the first rule whose group appears in the user's group list wins.
type GroupRoleRule struct {
	IdPGroup string `json:"idp_group"`
	Role     string `json:"role"`
}

// AuthState is the ephemeral record for one initiated login attempt. The
// state token is the primary lookup key and may be consumed at most once.
type AuthState struct {
	State        string     `json:"state"`
	Nonce        string     `json:"nonce"`
	CodeVerifier string     `json:"code_verifier,omitempty"`
	WorkspaceID  string     `json:"workspace_id"`
	ConfigID     string     `json:"config_id"`
	RedirectURI  string     `json:"redirect_uri"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

// DomainRouting maps one verified email domain to a workspace SSO
// configuration. Domains are globally unique across workspaces.
type DomainRouting struct {
	ID                 string     `json:"id"`
	WorkspaceID        string     `json:"workspace_id"`
	ConfigID           string     `json:"config_id"`
	Domain             string     `json:"domain"`
	VerificationToken  string     `json:"verification_token"`
	VerificationMethod string     `json:"verification_method,omitempty"`
	Verified           bool       `json:"verified"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ResolvedIdentity is the attribute mapper's output for one authenticated
// user. It is transient and never persisted.
type ResolvedIdentity struct {
	Email     string   `json:"email"`
	Name      string   `json:"name,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Role      string   `json:"role"`
}

// SSOCheckResult answers whether login for an email domain or workspace
// must go through SSO.
type SSOCheckResult struct {
	Required bool     `json:"required"`
	ConfigID string   `json:"config_id,omitempty"`
	Provider Provider `json:"provider,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// RequestMeta carries request-scoped context into audit events.
type RequestMeta struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// LoginResult is the orchestrator's successful callback outcome.
type LoginResult struct {
	Identity    *ResolvedIdentity `json:"identity"`
	WorkspaceID string            `json:"workspace_id"`
	ConfigID    string            `json:"config_id"`
	RedirectURI string            `json:"redirect_uri"`
	// TestMode is true when the login ran against a configuration still in
	// test mode; callers must not establish a real session for it.
	TestMode bool `json:"test_mode"`
}
