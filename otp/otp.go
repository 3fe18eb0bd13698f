// Package otp implements the time-windowed one-time code used for
// account verification. Codes are derived from a shared secret and the
// current time window; nothing is persisted and a code is valid only
// while its window (plus the configured tolerance) matches.
package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authgrid/authgrid/internal/safecmp"
)

// Defaults match the account-verification contract: SHA-256 HMAC, one
// hour per window, six digits, one window of tolerance either side.
const (
	DefaultPeriod = time.Hour
	DefaultDigits = 6
	DefaultSkew   = 1
)

// Config parameterizes a Verifier.
type Config struct {
	Secret []byte
	Period time.Duration
	Digits int
	Skew   int
}

// Verifier generates and checks windowed codes. Safe for concurrent use.
type Verifier struct {
	cfg Config
}

// NewVerifier applies defaults and validates the shared secret. Zero
// Period, Digits, and Skew take the package defaults; a skew of zero
// windows is not configurable.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("otp: shared secret required")
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Period < time.Second {
		return nil, errors.New("otp: period must be at least one second")
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Digits < 6 || cfg.Digits > 10 {
		return nil, errors.New("otp: digits must be between 6 and 10")
	}
	if cfg.Skew < 0 {
		return nil, errors.New("otp: skew must be >= 0")
	}
	if cfg.Skew == 0 {
		cfg.Skew = DefaultSkew
	}
	return &Verifier{cfg: cfg}, nil
}

// Generate derives the code for the window containing now.
func (v *Verifier) Generate(now time.Time) string {
	return v.code(now.Unix() / int64(v.cfg.Period/time.Second))
}

// Verify checks code against the current window and its skew neighbors
// using constant-time comparison. Non-numeric or wrong-length input is
// rejected before any derivation.
func (v *Verifier) Verify(code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.cfg.Digits || !numeric(trimmed) {
		return false
	}

	window := now.Unix() / int64(v.cfg.Period/time.Second)
	for step := -v.cfg.Skew; step <= v.cfg.Skew; step++ {
		candidate := window + int64(step)
		if candidate < 0 {
			continue
		}
		if safecmp.EqualString(v.code(candidate), trimmed) {
			return true
		}
	}
	return false
}

// code is RFC 4226 dynamic truncation over an HMAC-SHA256 of the window
// counter.
func (v *Verifier) code(counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha256.New, v.cfg.Secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < v.cfg.Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", v.cfg.Digits, value%mod)
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
