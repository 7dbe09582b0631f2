package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// verifierBytes is the entropy drawn for a code verifier before hex
// encoding. 32 bytes hex-encode to a 64-character verifier, inside the
// 43..128 character range RFC 7636 allows.
const verifierBytes = 32

// GenerateVerifier draws a fresh PKCE code verifier from the system
// CSPRNG. Every call draws new bytes; the verifier never leaves the
// process, only its derived challenge is sent to the provider.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DeriveChallenge computes the S256 code challenge for a verifier:
// BASE64URL(SHA256(ASCII(verifier))) without padding (RFC 7636 section 4.2).
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState draws a random CSRF state token, independent of the
// PKCE pair. 8 bytes give 64 bits of entropy, hex-encoded.
func GenerateState() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
