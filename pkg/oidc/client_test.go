package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdP is an httptest-backed OIDC provider serving discovery, token,
// userinfo, and JWKS endpoints.
type fakeIdP struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	discoveryHits int
	tokenStatus   int
	tokenBody     string
	lastTokenForm url.Values
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{key: key, tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		idp.discoveryHits++
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 idp.srv.URL,
			"authorization_endpoint": idp.srv.URL + "/authorize",
			"token_endpoint":         idp.srv.URL + "/token",
			"userinfo_endpoint":      idp.srv.URL + "/userinfo",
			"jwks_uri":               idp.srv.URL + "/jwks",
			"end_session_endpoint":   idp.srv.URL + "/logout",
			"scopes_supported":       []string{"openid", "profile", "email"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		idp.lastTokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(idp.tokenStatus)
		fmt.Fprint(w, idp.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_token"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sub":   "user-1",
			"email": "jane@example.com",
			"name":  "Jane Doe",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		pub := key.PublicKey
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": "test-key",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01}),
			}},
		})
	})

	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

// signJWT produces a compact RS256 JWT over the given claims with the IdP's
// signing key.
func (idp *fakeIdP) signJWT(t *testing.T, claims map[string]any) string {
	t.Helper()

	encode := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signingInput := encode(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test-key"}) +
		"." + encode(claims)

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, idp.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func testCreds() ProviderCredentials {
	return ProviderCredentials{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.docusynth.io/oidc/callback/ws-1",
	}
}

func TestDiscover(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)

	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)
	assert.Equal(t, idp.srv.URL, md.Issuer)
	assert.Equal(t, idp.srv.URL+"/authorize", md.AuthorizationEndpoint)
	assert.Equal(t, idp.srv.URL+"/token", md.TokenEndpoint)
	assert.Equal(t, idp.srv.URL+"/jwks", md.JWKSURI)
	assert.Equal(t, idp.srv.URL+"/logout", md.EndSessionEndpoint)

	// Second call is served from the cache.
	_, err = c.Discover(context.Background(), idp.srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 1, idp.discoveryHits)
}

func TestDiscoverErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no such tenant", http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				var uErr *UpstreamError
				require.ErrorAs(t, err, &uErr)
				assert.Equal(t, http.StatusNotFound, uErr.StatusCode)
				assert.Contains(t, uErr.Body, "no such tenant")
			},
		},
		{
			name: "issuer mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{
					"issuer":                 "https://evil.example.com",
					"authorization_endpoint": "https://evil.example.com/authorize",
					"token_endpoint":         "https://evil.example.com/token",
					"jwks_uri":               "https://evil.example.com/jwks",
				})
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrIssuerMismatch)
			},
		},
		{
			name: "missing token endpoint",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{
					"issuer":                 "https://idp.example.com",
					"authorization_endpoint": "https://idp.example.com/authorize",
				})
			},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "token_endpoint")
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>maintenance</html>")
			},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid discovery document")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(nil).Discover(context.Background(), srv.URL)
			tt.check(t, err)
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	md := &ProviderMetadata{
		Issuer:                "https://idp.example.com",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
		JWKSURI:               "https://idp.example.com/jwks",
	}

	raw := NewClient(nil).AuthorizationURL(md, testCreds(), AuthorizationParams{
		State:         "state-abc",
		Nonce:         "nonce-xyz",
		CodeChallenge: "challenge-123",
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://app.docusynth.io/oidc/callback/ws-1", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, "nonce-xyz", q.Get("nonce"))
	assert.Equal(t, "challenge-123", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestExchangeCode(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	idToken := idp.signJWT(t, map[string]any{
		"iss": idp.srv.URL,
		"sub": "user-1",
		"aud": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	body, err := json.Marshal(map[string]any{
		"access_token": "good-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
	require.NoError(t, err)
	idp.tokenBody = string(body)

	token, rawIDToken, err := c.ExchangeCode(context.Background(), md, testCreds(), "auth-code", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "good-access-token", token.AccessToken)
	assert.Equal(t, idToken, rawIDToken)

	form := idp.lastTokenForm
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "verifier-1", form.Get("code_verifier"))
}

func TestExchangeCodeUpstreamError(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	idp.tokenStatus = http.StatusBadRequest
	idp.tokenBody = `{"error":"invalid_grant","error_description":"code expired"}`

	_, _, err = c.ExchangeCode(context.Background(), md, testCreds(), "stale-code", "verifier-1")
	var uErr *UpstreamError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, "token", uErr.Endpoint)
	assert.Equal(t, http.StatusBadRequest, uErr.StatusCode)
	assert.Contains(t, uErr.Body, "invalid_grant")
}

func TestExchangeCodeMissingIDToken(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	idp.tokenBody = `{"access_token":"good-access-token","token_type":"Bearer"}`

	_, _, err = c.ExchangeCode(context.Background(), md, testCreds(), "auth-code", "")
	assert.ErrorIs(t, err, ErrMissingIDToken)
}

func TestRefreshToken(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	idp.tokenBody = `{"access_token":"refreshed-token","token_type":"Bearer","expires_in":3600}`

	token, err := c.RefreshToken(context.Background(), md, testCreds(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", token.AccessToken)
	assert.Equal(t, "refresh_token", idp.lastTokenForm.Get("grant_type"))
	assert.Equal(t, "refresh-1", idp.lastTokenForm.Get("refresh_token"))
}

func TestUserInfo(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	claims, err := c.UserInfo(context.Background(), md, "good-access-token")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", claims["email"])
	assert.Equal(t, "user-1", claims["sub"])

	_, err = c.UserInfo(context.Background(), md, "bad-token")
	var uErr *UpstreamError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, http.StatusUnauthorized, uErr.StatusCode)
}

func TestVerifyIDToken(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	token := idp.signJWT(t, map[string]any{
		"iss":   idp.srv.URL,
		"sub":   "user-1",
		"aud":   "client-1",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"email": "jane@example.com",
	})

	claims, err := c.VerifyIDToken(context.Background(), md, "client-1", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "jane@example.com", claims["email"])
}

func TestVerifyIDTokenRejectsBadSignature(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	token := idp.signJWT(t, map[string]any{
		"iss": idp.srv.URL,
		"sub": "user-1",
		"aud": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	// Swap the payload for one the signature does not cover.
	parts := strings.Split(token, ".")
	forged, err := json.Marshal(map[string]any{
		"iss": idp.srv.URL,
		"sub": "attacker",
		"aud": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)

	_, err = c.VerifyIDToken(context.Background(), md, "client-1", strings.Join(parts, "."))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification failed")
}

func TestVerifyIDTokenRejectsWrongAudience(t *testing.T) {
	idp := newFakeIdP(t)
	c := NewClient(nil)
	md, err := c.Discover(context.Background(), idp.srv.URL)
	require.NoError(t, err)

	token := idp.signJWT(t, map[string]any{
		"iss": idp.srv.URL,
		"sub": "user-1",
		"aud": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = c.VerifyIDToken(context.Background(), md, "client-1", token)
	assert.Error(t, err)
}
