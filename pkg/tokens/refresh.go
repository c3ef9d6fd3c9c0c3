package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const RefreshTokenBytes = 40

// NewRefreshToken returns 40 random bytes, hex encoded.
func NewRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken is what the session ledger stores and looks up by.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
