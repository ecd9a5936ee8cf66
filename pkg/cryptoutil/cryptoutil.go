// Package cryptoutil provides the random-token and hashing primitives used by
// the SSO subsystem: opaque state/nonce tokens, PKCE verifier/challenge pairs,
// and hex digests for verification challenges.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenCharset is the fixed 64-symbol alphabet used for opaque tokens. Its
// power-of-two size lets each random byte map to a symbol without modulo bias.
const tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// SecureRandomString returns a random string of length n drawn from the token
// charset using crypto/rand.
func SecureRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i := range b {
		b[i] = tokenCharset[int(b[i])&63]
	}
	return string(b), nil
}

// GeneratePKCE returns a PKCE code verifier and its S256 challenge.
// The verifier is 32 random bytes base64url-encoded without padding; the
// challenge is base64url(SHA-256(verifier)) per RFC 7636.
func GeneratePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// Hash returns the hex-encoded SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
