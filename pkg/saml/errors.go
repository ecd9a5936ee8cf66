package saml

import (
	"errors"
	"fmt"
)

// Sentinel errors for response parsing and condition validation. Each failure
// mode is distinct so the orchestrator can audit it under its own code.
var (
	ErrMalformedResponse    = errors.New("saml: malformed response XML")
	ErrMissingAssertion     = errors.New("saml: response contains no assertion")
	ErrMissingSignature     = errors.New("saml: no signature found on response or assertion")
	ErrAssertionNotYetValid = errors.New("saml: assertion is not yet valid")
	ErrAssertionExpired     = errors.New("saml: assertion has expired")
	ErrAudienceMismatch     = errors.New("saml: assertion audience does not match")
)

// StatusError reports a non-Success StatusCode from the IdP.
type StatusError struct {
	Code string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("saml: identity provider returned non-success status %q", e.Code)
}
