// Package sso orchestrates workspace single sign-on through external
// identity providers over SAML 2.0 and OIDC.
//
// The package ties the protocol codecs (pkg/saml, pkg/oidc) to workspace
// configuration, ephemeral auth state, domain routing, attribute mapping,
// and audit logging. Each login attempt moves through a small state
// machine: Initiate creates a single-use state record and produces the IdP
// redirect; the callback consumes the state exactly once, validates the
// protocol response, maps IdP claims to a ResolvedIdentity, and hands a
// provisioning decision to the external user-provisioning collaborator.
// Every terminal outcome writes exactly one audit event.
//
// All failures carry a Kind from the error taxonomy (configuration,
// protocol, validation, state, mapping) plus a stable code, so callers and
// audit records can distinguish a disabled configuration from a replayed
// state token from a bad signature.
package sso
