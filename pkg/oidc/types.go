package oidc

// ProviderMetadata is the subset of the OpenID Connect discovery document the
// login flow needs. See openid-connect-discovery-1_0 section 3.
type ProviderMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserInfoEndpoint      string   `json:"userinfo_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	EndSessionEndpoint    string   `json:"end_session_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	ClaimsSupported       []string `json:"claims_supported"`
}

// ProviderCredentials identifies one workspace's registration with an OIDC
// provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// AuthorizationParams carries the per-attempt values bound into the
// authorization redirect.
type AuthorizationParams struct {
	State         string
	Nonce         string
	CodeChallenge string
	// Prompt, when non-empty, forces IdP behavior such as "login" or
	// "select_account".
	Prompt string
}

// DefaultScopes is used when a configuration does not list scopes.
var DefaultScopes = []string{"openid", "profile", "email"}
