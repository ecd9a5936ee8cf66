package oidc

import (
	"errors"
	"fmt"
)

// Sentinel errors for token decoding and claim validation. Each maps to a
// distinct audit code in the orchestrator.
var (
	ErrMissingIDToken   = errors.New("oidc: token response contains no id_token")
	ErrMalformedJWT     = errors.New("oidc: malformed JWT")
	ErrIssuerMismatch   = errors.New("oidc: issuer mismatch")
	ErrAudienceMismatch = errors.New("oidc: token audience does not include client_id")
	ErrAuthorizedParty  = errors.New("oidc: azp does not match client_id")
	ErrTokenExpired     = errors.New("oidc: token has expired")
	ErrTokenNotYetValid = errors.New("oidc: token issued in the future")
	ErrNonceMismatch    = errors.New("oidc: nonce mismatch")
)

// UpstreamError reports a non-2xx reply from a provider endpoint, preserving
// the status and response body for audit logs.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("oidc: %s returned status %d: %s", e.Endpoint, e.StatusCode, body)
}
