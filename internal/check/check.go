// Package check generates and hashes the rotating correlation value
// embedded in refresh tokens and mirrored (hashed) in the session cache.
package check

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a fresh opaque check value.
func New() string {
	return uuid.NewString()
}

// Hash returns the hex-encoded SHA-256 of a check value. The plaintext
// value travels only inside the refresh token; stores see this hash.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
