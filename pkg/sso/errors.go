package sso

import (
	"errors"
	"fmt"
)

// Kind classifies an SSO failure. Every terminal error carries exactly one
// kind; the orchestrator audits and reports them distinctly.
type Kind string

const (
	// KindConfiguration covers disabled or incomplete configurations.
	// Always terminal, never retried.
	KindConfiguration Kind = "configuration"
	// KindProtocol covers malformed wire data and upstream non-2xx.
	KindProtocol Kind = "protocol"
	// KindValidation covers failed security checks: signatures, expiry,
	// audience, issuer, nonce.
	KindValidation Kind = "validation"
	// KindState covers auth-state failures, treated as potential replays.
	KindState Kind = "state"
	// KindMapping covers claim-to-profile resolution failures.
	KindMapping Kind = "mapping"
)

// Stable error codes, recorded verbatim in audit events.
const (
	CodeConfigNotFound   = "config_not_found"
	CodeConfigDisabled   = "config_disabled"
	CodeMissingField     = "missing_field"
	CodeEnableInTestMode = "enable_in_test_mode"
	CodeInvalidProvider  = "invalid_provider"
	CodeInvalidRole      = "invalid_role"

	CodeMalformedResponse = "malformed_response"
	CodeNonSuccessStatus  = "non_success_status"
	CodeMissingAssertion  = "missing_assertion"
	CodeUpstreamError     = "upstream_error"
	CodeMissingIDToken    = "missing_id_token"

	CodeInvalidSignature     = "invalid_signature"
	CodeAssertionExpired     = "assertion_expired"
	CodeAssertionNotYetValid = "assertion_not_yet_valid"
	CodeAudienceMismatch     = "audience_mismatch"
	CodeIssuerMismatch       = "issuer_mismatch"
	CodeNonceMismatch        = "nonce_mismatch"
	CodeTokenExpired         = "token_expired"
	CodeTokenNotYetValid     = "token_not_yet_valid"

	CodeStateNotFound = "state_not_found"
	CodeStateUsed     = "state_already_used"
	CodeStateExpired  = "state_expired"

	CodeMissingEmail          = "missing_email"
	CodeEmailDomainBlocked    = "email_domain_blocked"
	CodeEmailDomainNotAllowed = "email_domain_not_allowed"

	CodeDomainTaken              = "domain_taken"
	CodeDomainNotFound           = "domain_not_found"
	CodeInvalidDomain            = "invalid_domain"
	CodeDomainVerificationFailed = "domain_verification_failed"

	CodeProvisioningFailed = "provisioning_failed"
)

// Error is the typed result every SSO failure surfaces as.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sso: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("sso: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewConfigurationError reports a disabled or incomplete configuration.
func NewConfigurationError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewProtocolError reports malformed wire data or an upstream failure.
func NewProtocolError(code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewValidationError reports a failed security check.
func NewValidationError(code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewStateError reports an auth-state failure.
func NewStateError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewMappingError reports a claim resolution failure.
func NewMappingError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindMapping, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of an SSO error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the stable code of an SSO error, or "internal_error" for
// anything else, so audit records always have a code.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
