// Package flows implements the session lifecycle logic behind the
// public engine. The root package wires concrete dependencies into a
// Deps value once at build time and delegates every operation here.
package flows

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/otp"
	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/policy"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// SignupPolicy controls what roles self-service signup may produce.
type SignupPolicy struct {
	// Bootstrap permits the first-operator path: unauthenticated signup
	// is granted BootstrapRole instead of DefaultRole. Must be switched
	// off once the first operator account exists.
	Bootstrap     bool
	BootstrapRole policy.Role
	DefaultRole   policy.Role
}

// Deps is the immutable dependency set for all flows.
type Deps struct {
	Users    UserStore
	Recovery RecoveryStore

	Tokens    *token.Manager
	Cache     *session.Cache
	Passwords *password.Hasher

	// OTP carries the master verification secret; per-account secrets
	// are derived from it so codes never transfer between accounts.
	OTP otp.Config

	Publisher Publisher
	Notifier  Notifier

	Audit   *audit.Dispatcher
	Metrics *metrics.Registry
	Log     logrus.FieldLogger

	Signup      SignupPolicy
	RecoveryTTL time.Duration

	// NewRecoveryValue mints an opaque single-use recovery value.
	NewRecoveryValue func() (string, error)

	// Now defaults to time.Now; injected by clock-sensitive tests.
	Now func() time.Time
}

// Service runs the lifecycle flows. Built once, safe for concurrent
// use.
type Service struct {
	deps Deps

	// decoyHash equalizes login timing for unknown identities.
	decoyHash string
}

// New validates the wiring and precomputes the decoy hash.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("flows: user store required")
	case deps.Tokens == nil:
		return nil, errors.New("flows: token manager required")
	case deps.Cache == nil:
		return nil, errors.New("flows: session cache required")
	case deps.Passwords == nil:
		return nil, errors.New("flows: password hasher required")
	case deps.Recovery == nil:
		return nil, errors.New("flows: recovery store required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRecoveryValue == nil {
		deps.NewRecoveryValue = func() (string, error) {
			return gonanoid.New(32)
		}
	}
	if deps.Log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		deps.Log = logger
	}
	if deps.RecoveryTTL <= 0 {
		deps.RecoveryTTL = 24 * time.Hour
	}

	decoy, err := deps.Passwords.Hash("decoy-credential-for-timing")
	if err != nil {
		return nil, err
	}

	return &Service{deps: deps, decoyHash: decoy}, nil
}

// otpFor derives the account-scoped verification code service. The
// derivation is keyed HMAC so one account's codes are useless against
// another.
func (s *Service) otpFor(email string) (*otp.Verifier, error) {
	mac := hmac.New(sha256.New, s.deps.OTP.Secret)
	mac.Write([]byte(email))

	cfg := s.deps.OTP
	cfg.Secret = mac.Sum(nil)
	return otp.NewVerifier(cfg)
}

func (s *Service) now() time.Time {
	return s.deps.Now()
}

func (s *Service) inc(id metrics.ID) {
	s.deps.Metrics.Inc(id)
}

func (s *Service) emit(ctx context.Context, eventType, userID string, success bool, failure error) {
	ev := audit.Event{
		Timestamp: s.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
	}
	if failure != nil {
		ev.Error = failure.Error()
	}
	s.deps.Audit.Record(ctx, ev)
}
