package authgrid

import (
	"context"

	"github.com/authgrid/authgrid/csrf"
	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/flows"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/policy"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// Engine is the credential lifecycle and authorization engine. Build
// one with a Builder; it is immutable and safe for concurrent use.
type Engine struct {
	config  Config
	service *flows.Service
	tokens  *token.Manager
	cache   *session.Cache
	csrf    *csrf.Service
	audit   *audit.Dispatcher
	metrics *metrics.Registry
}

func (e *Engine) ready() bool {
	return e != nil && e.service != nil
}

// Signup creates an account, announces it to downstream services, and
// sends the verification code.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	return e.service.Signup(ctx, req)
}

// VerifyAccount confirms ownership of the signup email with the
// windowed one-time code.
func (e *Engine) VerifyAccount(ctx context.Context, email, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.VerifyAccount(ctx, email, code)
}

// Login authenticates the credential pair and establishes a session.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	return e.service.Login(ctx, email, password)
}

// Revalidate exchanges a live refresh token for a fresh pair, rotating
// the check value.
func (e *Engine) Revalidate(ctx context.Context, refreshToken string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	return e.service.Revalidate(ctx, refreshToken)
}

// Logout tears down the session named by the refresh token. Expired
// but genuine tokens are accepted; forged ones are not.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.Logout(ctx, refreshToken)
}

// RevokeAccess deactivates the target account and kills its session.
// Self-revocation through this path is rejected; use Logout.
func (e *Engine) RevokeAccess(ctx context.Context, targetID string, principal policy.Subject) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.RevokeAccess(ctx, targetID, principal)
}

// DeactivateUser is the administrative form of revocation.
func (e *Engine) DeactivateUser(ctx context.Context, targetID string, principal policy.Subject) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.Deactivate(ctx, targetID, principal)
}

// UpdateUserRoles changes the target's role set under the privilege
// rules and refreshes any live session record.
func (e *Engine) UpdateUserRoles(ctx context.Context, targetID string, roles policy.Roles, principal policy.Subject) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.UpdateRoles(ctx, targetID, roles, principal)
}

// RecoverCredentials starts the silent password recovery flow.
func (e *Engine) RecoverCredentials(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.RecoverCredentials(ctx, email)
}

// ResetPassword redeems a recovery grant for a new password.
func (e *Engine) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.service.ResetPassword(ctx, tokenValue, newPassword)
}

// CSRFToken mints a fresh double-submit token.
func (e *Engine) CSRFToken() (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.csrf.Generate()
}

// VerifyCSRF runs the double-submit guard over the cookie and header
// tokens.
func (e *Engine) VerifyCSRF(cookieToken, headerToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.csrf.Verify(cookieToken, headerToken)
}

// VerifyAccess statelessly authenticates an access token and returns
// its subject.
func (e *Engine) VerifyAccess(accessToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.tokens.VerifyAccess(accessToken)
}

// Tokens exposes the token manager for gateway wiring.
func (e *Engine) Tokens() *token.Manager {
	if e == nil {
		return nil
	}
	return e.tokens
}

// Cache exposes the shared session cache for gateway wiring.
func (e *Engine) Cache() *session.Cache {
	if e == nil {
		return nil
	}
	return e.cache
}

// CSRF exposes the anti-forgery token service for gateway wiring.
func (e *Engine) CSRF() *csrf.Service {
	if e == nil {
		return nil
	}
	return e.csrf
}

// MetricsSnapshot copies every lifecycle counter at one point in time,
// keyed by stable export name.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	out := make(map[string]uint64, len(metrics.IDs()))
	if e == nil {
		return out
	}
	for id, v := range e.metrics.Snapshot() {
		out[id.String()] = v
	}
	return out
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The engine is unusable
// for auditing afterwards; flows keep working.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}
