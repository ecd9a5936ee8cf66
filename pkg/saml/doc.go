// Package saml implements the Service-Provider side of the SAML 2.0 Web
// Browser SSO and Single Logout profiles.
//
// # Overview
//
// The package builds AuthnRequest and LogoutRequest documents for the
// HTTP-Redirect binding (raw DEFLATE + base64 + URL encoding), parses and
// validates Response documents received on the HTTP-POST binding, verifies
// XML-DSig signatures against the configured IdP certificate, and emits SP
// metadata that commodity IdPs (Okta, Azure AD, OneLogin) can ingest directly.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf
//
// # Usage
//
//	sp := &saml.ServiceProvider{
//		EntityID:       "https://app.example.com/sso/metadata",
//		ACSURL:         "https://app.example.com/auth/sso/callback",
//		IDPSSOURL:      "https://idp.example.com/sso/saml",
//		IDPCertificate: pemCert,
//	}
//	artifact, err := sp.BuildAuthnRequest("", relayState)
//	// redirect the browser to artifact.RedirectURL
//
// On callback:
//
//	info, err := saml.ParseResponse(r.FormValue("SAMLResponse"))
//	err = sp.ValidateSignature(info.Raw)
//	err = saml.ValidateConditions(info.Assertion, sp.EntityID, saml.DefaultClockSkew)
//
// All validation failures are returned as typed errors so callers can audit
// them distinctly; nothing in this package panics on malformed input.
package saml
