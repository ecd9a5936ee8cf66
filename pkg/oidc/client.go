package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

const (
	wellKnownPath = "/.well-known/openid-configuration"

	// discoveryTTL bounds how long a cached discovery document is served
	// before the issuer is consulted again.
	discoveryTTL = time.Hour

	discoveryCacheSize = 64

	defaultHTTPTimeout = 10 * time.Second
)

// Client performs OIDC protocol operations against any configured provider.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client

	discovery *expirable.LRU[string, *ProviderMetadata]

	mu      sync.Mutex
	keySets map[string]*gooidc.RemoteKeySet
}

// NewClient returns a Client using the given HTTP client for all provider
// traffic. A nil httpClient gets a default with a 10-second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		httpClient: httpClient,
		discovery:  expirable.NewLRU[string, *ProviderMetadata](discoveryCacheSize, nil, discoveryTTL),
		keySets:    make(map[string]*gooidc.RemoteKeySet),
	}
}

// Discover fetches the issuer's discovery document, validating the required
// fields and that the advertised issuer matches the requested one. Documents
// are cached per issuer for discoveryTTL.
func (c *Client) Discover(ctx context.Context, issuerURL string) (*ProviderMetadata, error) {
	issuerURL = strings.TrimSuffix(issuerURL, "/")
	if md, ok := c.discovery.Get(issuerURL); ok {
		return md, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL+wellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("oidc: invalid issuer URL %q: %w", issuerURL, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to read discovery document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Endpoint: "discovery", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var md ProviderMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("oidc: invalid discovery document: %w", err)
	}
	if err := validateMetadata(&md); err != nil {
		return nil, err
	}
	if strings.TrimSuffix(md.Issuer, "/") != issuerURL {
		return nil, fmt.Errorf("%w: discovery document issuer %q does not match %q",
			ErrIssuerMismatch, md.Issuer, issuerURL)
	}

	c.discovery.Add(issuerURL, &md)
	return &md, nil
}

func validateMetadata(md *ProviderMetadata) error {
	missing := func(field string) error {
		return fmt.Errorf("oidc: discovery document is missing %s", field)
	}
	switch {
	case md.Issuer == "":
		return missing("issuer")
	case md.AuthorizationEndpoint == "":
		return missing("authorization_endpoint")
	case md.TokenEndpoint == "":
		return missing("token_endpoint")
	case md.JWKSURI == "":
		return missing("jwks_uri")
	}
	return nil
}

func oauthConfig(md *ProviderMetadata, creds ProviderCredentials) *oauth2.Config {
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
	}
}

// AuthorizationURL builds the IdP redirect carrying the state, nonce, and
// PKCE challenge for one login attempt.
func (c *Client) AuthorizationURL(md *ProviderMetadata, creds ProviderCredentials, params AuthorizationParams) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", params.Nonce),
	}
	if params.CodeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", params.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	if params.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", params.Prompt))
	}
	return oauthConfig(md, creds).AuthCodeURL(params.State, opts...)
}

// ExchangeCode redeems an authorization code at the token endpoint and
// returns the token set plus the raw ID token. The PKCE verifier must match
// the challenge sent on the authorization redirect.
func (c *Client) ExchangeCode(ctx context.Context, md *ProviderMetadata, creds ProviderCredentials, code, codeVerifier string) (*oauth2.Token, string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := oauthConfig(md, creds).Exchange(ctx, code, opts...)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, "", &UpstreamError{
				Endpoint:   "token",
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
			}
		}
		return nil, "", fmt.Errorf("oidc: code exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", ErrMissingIDToken
	}
	return token, rawIDToken, nil
}

// RefreshToken obtains a fresh token set from a refresh token.
func (c *Client) RefreshToken(ctx context.Context, md *ProviderMetadata, creds ProviderCredentials, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	src := oauthConfig(md, creds).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, &UpstreamError{
				Endpoint:   "token",
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
			}
		}
		return nil, fmt.Errorf("oidc: token refresh failed: %w", err)
	}
	return token, nil
}

// UserInfo fetches the UserInfo endpoint with the given access token and
// returns the raw claims.
func (c *Client) UserInfo(ctx context.Context, md *ProviderMetadata, accessToken string) (map[string]any, error) {
	if md.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("oidc: provider does not advertise a userinfo_endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("oidc: invalid userinfo endpoint: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Endpoint: "userinfo", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("oidc: invalid userinfo response: %w", err)
	}
	return claims, nil
}

// VerifyIDToken checks the ID token signature against the provider's JWKS
// and that iss and aud match. Providers configured by explicit endpoints
// carry no issuer, so the issuer check is skipped for them. Expiry and nonce
// are left to ValidateClaims so the orchestrator controls clock skew. The
// verified claims are returned.
func (c *Client) VerifyIDToken(ctx context.Context, md *ProviderMetadata, clientID, rawIDToken string) (map[string]any, error) {
	verifier := gooidc.NewVerifier(md.Issuer, c.remoteKeySet(md.JWKSURI), &gooidc.Config{
		ClientID:        clientID,
		SkipExpiryCheck: true,
		SkipIssuerCheck: md.Issuer == "",
	})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc: id_token verification failed: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: failed to decode id_token claims: %w", err)
	}
	return claims, nil
}

// remoteKeySet returns the shared JWKS fetcher for a jwks_uri. Key sets cache
// fetched keys internally, so one instance per URI is kept for the process
// lifetime.
func (c *Client) remoteKeySet(jwksURI string) *gooidc.RemoteKeySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ks, ok := c.keySets[jwksURI]; ok {
		return ks
	}
	ctx := gooidc.ClientContext(context.Background(), c.httpClient)
	ks := gooidc.NewRemoteKeySet(ctx, jwksURI)
	c.keySets[jwksURI] = ks
	return ks
}
