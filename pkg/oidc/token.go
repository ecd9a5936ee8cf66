package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultClockSkew is the tolerance applied to exp and iat during claim
// validation.
const DefaultClockSkew = 5 * time.Minute

// timeNow is swapped in tests to pin claim validation.
var timeNow = time.Now

// DecodeJWT splits a compact JWT into its decoded header and claims without
// verifying the signature. Use VerifyIDToken for signature checks; this is
// for inspecting tokens before verification and for surfacing claims in
// error paths.
func DecodeJWT(raw string) (header, claims map[string]any, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedJWT, len(parts))
	}
	if header, err = decodeSegment(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("%w: bad header: %v", ErrMalformedJWT, err)
	}
	if claims, err = decodeSegment(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("%w: bad payload: %v", ErrMalformedJWT, err)
	}
	return header, claims, nil
}

func decodeSegment(seg string) (map[string]any, error) {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ClaimExpectation is what an ID token must carry to be accepted for one
// login attempt.
type ClaimExpectation struct {
	Issuer   string
	ClientID string
	// Nonce, when non-empty, must match the nonce claim exactly.
	Nonce string
	// Skew defaults to DefaultClockSkew when zero.
	Skew time.Duration
}

// ValidateClaims enforces the ID token claim rules from
// openid-connect-core-1_0 section 3.1.3.7: issuer match when an issuer is
// known, audience containing the client ID (with azp, when present, naming
// the client on multi-audience tokens), expiry and issued-at within the skew
// window, and the expected nonce. An empty want.Issuer skips the issuer
// check; providers configured by explicit endpoints have no issuer to pin.
func ValidateClaims(claims map[string]any, want ClaimExpectation) error {
	skew := want.Skew
	if skew == 0 {
		skew = DefaultClockSkew
	}
	now := timeNow().UTC()

	if want.Issuer != "" {
		if iss, _ := claims["iss"].(string); iss != want.Issuer {
			return fmt.Errorf("%w: token iss %q, expected %q", ErrIssuerMismatch, iss, want.Issuer)
		}
	}

	audiences, err := audienceList(claims["aud"])
	if err != nil {
		return err
	}
	if !contains(audiences, want.ClientID) {
		return fmt.Errorf("%w: aud %v", ErrAudienceMismatch, audiences)
	}
	if len(audiences) > 1 {
		if azp, ok := claims["azp"].(string); ok && azp != want.ClientID {
			return fmt.Errorf("%w: azp %q on multi-audience token", ErrAuthorizedParty, azp)
		}
	}

	exp, ok := numericClaim(claims["exp"])
	if !ok {
		return fmt.Errorf("%w: missing or non-numeric exp claim", ErrMalformedJWT)
	}
	if now.After(time.Unix(exp, 0).Add(skew)) {
		return fmt.Errorf("%w: exp=%d now=%d", ErrTokenExpired, exp, now.Unix())
	}
	if iat, ok := numericClaim(claims["iat"]); ok {
		if time.Unix(iat, 0).After(now.Add(skew)) {
			return fmt.Errorf("%w: iat=%d now=%d", ErrTokenNotYetValid, iat, now.Unix())
		}
	}

	if want.Nonce != "" {
		if nonce, _ := claims["nonce"].(string); nonce != want.Nonce {
			return ErrNonceMismatch
		}
	}
	return nil
}

// audienceList normalizes the aud claim, which may be a string or an array
// of strings.
func audienceList(aud any) ([]string, error) {
	switch v := aud.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string audience entry", ErrMalformedJWT)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: missing or invalid aud claim", ErrMalformedJWT)
	}
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
