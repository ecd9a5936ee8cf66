// Package oidc implements the relying-party side of OpenID Connect for
// workspace single sign-on: issuer discovery, authorization URL construction
// with PKCE, code exchange, ID token decoding and validation against the
// provider's JWKS, and UserInfo retrieval.
//
// The package is deliberately stateless with respect to workspaces. A single
// Client serves every configured provider; per-workspace settings (client ID,
// secret, issuer) are passed into each call. Discovery documents are cached
// per issuer with a bounded TTL so hot login paths do not refetch metadata.
package oidc
