// Package token generates the opaque identifiers and bearer secrets used by
// the lifecycle core. Entropy and format are deliberately contained here so
// the rest of the core treats generation as an opaque contract.
package token

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const (
	accessSecretSize  = 32
	refreshSecretSize = 48
)

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewAccessToken returns a cryptographically unpredictable bearer secret.
func NewAccessToken() (string, error) {
	return randomToken(accessSecretSize)
}

// NewRefreshToken returns a cryptographically unpredictable bearer secret,
// longer than the access token since it lives for the full refresh window.
func NewRefreshToken() (string, error) {
	return randomToken(refreshSecretSize)
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
