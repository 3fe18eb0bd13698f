package flows

import (
	"context"
	"errors"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
)

// Revalidate exchanges a live refresh token for a fresh pair, rotating
// the check value so the presented token can never be replayed.
//
// Acceptance requires all three: a valid signature with unexpired
// claims, a cache record whose hash matches the presented check value,
// and a user row that is still active and verified. Every rejection
// reads as ErrInvalidOrExpiredToken except deliberate deactivation
// (ErrInactiveAccount) and an unverified account
// (ErrPendingVerification).
func (s *Service) Revalidate(ctx context.Context, refreshToken string) (LoginResult, error) {
	subject, checkValue, err := s.deps.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.inc(metrics.RefreshFailure)
		s.emit(ctx, audit.EventRefresh, "", false, ErrInvalidOrExpiredToken)
		return LoginResult{}, ErrInvalidOrExpiredToken
	}

	live, err := s.deps.Cache.Validate(ctx, subject, checkValue)
	if err != nil {
		s.inc(metrics.RefreshFailure)
		return LoginResult{}, err
	}
	if !live {
		s.inc(metrics.CacheMiss)
		s.inc(metrics.RefreshFailure)
		s.emit(ctx, audit.EventRefresh, subject, false, ErrInvalidOrExpiredToken)
		return LoginResult{}, ErrInvalidOrExpiredToken
	}
	s.inc(metrics.CacheHit)

	// The cache can outlive a deactivation for one retry window; the
	// user row is authoritative, so re-read it on every rotation.
	user, err := s.deps.Users.ByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = ErrInvalidOrExpiredToken
		}
		s.inc(metrics.RefreshFailure)
		s.emit(ctx, audit.EventRefresh, subject, false, err)
		return LoginResult{}, err
	}
	if !user.Active {
		// Close the stale-cache window on the spot.
		if err := s.deps.Cache.Invalidate(ctx, subject); err != nil {
			s.deps.Log.WithError(err).WithField("user_id", subject).
				Warn("stale session record could not be invalidated")
		}
		s.inc(metrics.RefreshFailure)
		s.emit(ctx, audit.EventRefresh, subject, false, ErrInactiveAccount)
		return LoginResult{}, ErrInactiveAccount
	}
	if !user.Verified {
		s.inc(metrics.RefreshFailure)
		s.emit(ctx, audit.EventRefresh, subject, false, ErrPendingVerification)
		return LoginResult{}, ErrPendingVerification
	}

	tokens, err := s.establishSession(ctx, user)
	if err != nil {
		s.inc(metrics.RefreshFailure)
		return LoginResult{}, err
	}

	s.inc(metrics.RefreshSuccess)
	s.emit(ctx, audit.EventRefresh, user.ID, true, nil)
	return LoginResult{Tokens: tokens, User: user}, nil
}
