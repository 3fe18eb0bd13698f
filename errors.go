package authgrid

import (
	"errors"

	"github.com/authgrid/authgrid/csrf"
	"github.com/authgrid/authgrid/internal/flows"
	"github.com/authgrid/authgrid/token"
)

// Sentinel errors returned by Engine operations. Callers branch with
// errors.Is; anything not listed here is an infrastructure failure.
// The values are shared with the packages that produce them so
// identity holds across the boundary.
var (
	ErrInvalidCredentials = flows.ErrInvalidCredentials

	ErrUserNotFound  = flows.ErrUserNotFound
	ErrAccountExists = flows.ErrAccountExists

	ErrInactiveAccount     = flows.ErrInactiveAccount
	ErrPendingVerification = flows.ErrPendingVerification
	ErrAlreadyVerified     = flows.ErrAlreadyVerified

	// ErrInvalidOrExpiredToken is the deliberately coarse rejection for
	// refresh and recovery material: stale, rotated-away, revoked and
	// never-issued all read the same from outside.
	ErrInvalidOrExpiredToken = flows.ErrInvalidOrExpiredToken
	ErrTamperedToken         = token.ErrTampered
	ErrExpiredToken          = token.ErrExpired

	ErrInsufficientPrivilege = flows.ErrInsufficientPrivilege
	ErrImpossibleSelfAction  = flows.ErrImpossibleSelfAction

	ErrPasswordReuse = flows.ErrPasswordReuse

	// ErrRevokeIncomplete reports that the account was deactivated but
	// the session cache entry survived both invalidation attempts. The
	// record's TTL is the backstop; callers should alarm, not repeat
	// the deactivation.
	ErrRevokeIncomplete = flows.ErrRevokeIncomplete

	ErrCsrfMissing  = csrf.ErrMissing
	ErrCsrfMismatch = csrf.ErrMismatch
	ErrCsrfInvalid  = csrf.ErrInvalid

	ErrEngineNotReady = errors.New("engine not initialized")
)
