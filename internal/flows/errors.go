package flows

import "errors"

// Flow sentinels. The root package re-exports these; flows and root
// must share identity so errors.Is works across the boundary.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserNotFound  = errors.New("user not found")
	ErrAccountExists = errors.New("account already exists")

	ErrInactiveAccount     = errors.New("account inactive")
	ErrPendingVerification = errors.New("account pending verification")
	ErrAlreadyVerified     = errors.New("account already verified")

	// ErrInvalidOrExpiredToken is the coarse rejection for refresh and
	// recovery material. Stale, rotated-away, revoked and never-issued
	// must be indistinguishable to the caller.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrImpossibleSelfAction  = errors.New("action not permitted on own account")

	ErrPasswordReuse = errors.New("new password must differ from the current password")

	// ErrRevokeIncomplete means the account was deactivated but the
	// session cache entry survived both invalidation attempts. The
	// record TTL is the backstop; the deactivation itself held.
	ErrRevokeIncomplete = errors.New("revocation incomplete: cache entry not invalidated")
)
