package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey returns a fresh raw API key: the configured prefix followed
// by 64 hex characters from a cryptographically secure source.
func GenerateAPIKey(prefix string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the lowercase hex SHA-256 of the raw key. Only this
// digest is ever stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the first 8 characters of a raw key, kept for operator
// identification only.
func KeyPrefix(raw string) string {
	if len(raw) < 8 {
		return raw
	}
	return raw[:8]
}

// HashEqual compares a computed key hash against the stored one without
// leaking timing.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
