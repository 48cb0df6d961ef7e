package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// InviteTokenPrefix identifies team invite tokens
	InviteTokenPrefix = "mhi_"
	// SessionTokenPrefix identifies user session tokens
	SessionTokenPrefix = "mhu_"
	// TokenLength is the number of random bytes in a secret (256 bits)
	TokenLength = 32
)

// GenerateSecret creates a new bearer secret and its storage hash.
// Format: <prefix><base64url(32 random bytes)>
func GenerateSecret(prefix string) (secret string, hash string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = prefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return secret, HashSecret(secret), nil
}

// HashSecret computes the SHA-256 hex digest used as the lookup key.
// Surrounding whitespace is ignored so copy-pasted tokens still resolve.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}
