// Package csrf implements the double-submit anti-forgery token: a random
// value plus an HMAC signature over it, transported as "value.signature"
// in both a cookie and a custom header on every state-changing request.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/authgrid/authgrid/internal/safecmp"
)

const tokenBytes = 32

// Guard failure modes, checked in order: a missing submission fails
// before the pair is compared, and a mismatched pair fails before the
// signature is ever recomputed.
var (
	ErrMissing  = errors.New("csrf token missing")
	ErrMismatch = errors.New("csrf cookie/header mismatch")
	ErrInvalid  = errors.New("csrf token invalid")
)

// Service issues and verifies signed tokens. Stateless: verification
// only recomputes the signature with the server secret.
type Service struct {
	secret []byte
}

func NewService(secret []byte) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("csrf: server secret required")
	}
	return &Service{secret: secret}, nil
}

// Generate returns a fresh "<hex-value>.<hex-hmac-signature>" token.
func (s *Service) Generate() (string, error) {
	value := make([]byte, tokenBytes)
	if _, err := rand.Read(value); err != nil {
		return "", err
	}
	encoded := hex.EncodeToString(value)
	return encoded + "." + s.sign(encoded), nil
}

// VerifyToken checks a single token's signature in constant time.
func (s *Service) VerifyToken(token string) bool {
	value, signature, ok := strings.Cut(token, ".")
	if !ok || value == "" || signature == "" {
		return false
	}
	return safecmp.EqualString(s.sign(value), signature)
}

// Verify runs the full double-submit guard sequence over the
// cookie-carried token and the custom-header token.
func (s *Service) Verify(cookieToken, headerToken string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrMissing
	}
	if !safecmp.EqualString(cookieToken, headerToken) {
		return ErrMismatch
	}
	if !s.VerifyToken(cookieToken) {
		return ErrInvalid
	}
	return nil
}

func (s *Service) sign(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
