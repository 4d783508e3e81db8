package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// refreshSecretBytes is the entropy of a refresh secret (256 bits).
const refreshSecretBytes = 32

// maxCredentialLength bounds what ParseRefreshCredential will look at.
const maxCredentialLength = 512

// RefreshCredential is the wire form of a session capability,
// "<recordID>:<secret>". It is parsed once at ingress and passed around
// as this struct; downstream code never splits strings.
type RefreshCredential struct {
	RecordID string
	Secret   string
}

// ParseRefreshCredential splits raw into record id and secret.
// Anything other than exactly two non-empty, whitespace-free halves
// wraps ErrRefreshMalformed.
func ParseRefreshCredential(raw string) (RefreshCredential, error) {
	if raw == "" || len(raw) > maxCredentialLength {
		return RefreshCredential{}, ErrRefreshMalformed
	}
	id, secret, ok := strings.Cut(raw, ":")
	if !ok || id == "" || secret == "" || strings.Contains(secret, ":") {
		return RefreshCredential{}, ErrRefreshMalformed
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return RefreshCredential{}, ErrRefreshMalformed
	}
	return RefreshCredential{RecordID: id, Secret: secret}, nil
}

// String renders the wire form. It contains the secret: never log it.
func (c RefreshCredential) String() string {
	return c.RecordID + ":" + c.Secret
}

// IsZero reports whether c is the empty credential.
func (c RefreshCredential) IsZero() bool {
	return c.RecordID == "" && c.Secret == ""
}

// generateSecret returns a fresh 256-bit hex secret.
func generateSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
