package objectstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewAccessToken generates the opaque token embedded in a derivative at
// creation time. Possession of the token is the only gate on retrieval.
func NewAccessToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
