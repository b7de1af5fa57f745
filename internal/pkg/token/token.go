package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewBearerToken generates a cryptographically random 64-character hex token
// used as the opaque credential value.
func NewBearerToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate bearer token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
