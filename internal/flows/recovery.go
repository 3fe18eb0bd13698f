package flows

import (
	"context"
	"errors"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
)

// RecoverCredentials starts the password recovery flow. The flow is
// silent: an unknown, inactive or unverified identity returns nil
// exactly like a real one, so the endpoint cannot be used to enumerate
// accounts. Only infrastructure failures surface.
func (s *Service) RecoverCredentials(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.deps.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.Active || !user.Verified {
		return nil
	}

	value, err := s.deps.NewRecoveryValue()
	if err != nil {
		return err
	}

	grant := RecoveryToken{
		UserID:    user.ID,
		Value:     value,
		ExpiresAt: s.now().Add(s.deps.RecoveryTTL),
	}
	// Replace, not insert: a second request rotates the grant and the
	// earlier emailed value dies immediately.
	if err := s.deps.Recovery.Replace(ctx, grant); err != nil {
		return err
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendRecoveryToken(ctx, user.Email, value); err != nil {
			s.deps.Log.WithError(err).WithField("user_id", user.ID).
				Warn("recovery token delivery failed")
		}
	}

	s.inc(metrics.RecoveryRequested)
	s.emit(ctx, audit.EventRecoveryRequest, user.ID, true, nil)
	return nil
}

// ResetPassword redeems a recovery grant. On success the grant is
// consumed, the stored hash is replaced, and any live session is
// invalidated so stolen tokens die with the old password.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	grant, err := s.deps.Recovery.FindByValue(ctx, tokenValue)
	if err != nil {
		s.inc(metrics.ResetFailure)
		s.emit(ctx, audit.EventPasswordReset, "", false, ErrInvalidOrExpiredToken)
		return ErrInvalidOrExpiredToken
	}
	if grant.Expired(s.now()) {
		_ = s.deps.Recovery.DeleteForUser(ctx, grant.UserID)
		s.inc(metrics.ResetFailure)
		s.emit(ctx, audit.EventPasswordReset, grant.UserID, false, ErrInvalidOrExpiredToken)
		return ErrInvalidOrExpiredToken
	}

	user, err := s.deps.Users.ByID(ctx, grant.UserID)
	if err != nil {
		s.inc(metrics.ResetFailure)
		return err
	}
	if !user.Active {
		s.inc(metrics.ResetFailure)
		s.emit(ctx, audit.EventPasswordReset, user.ID, false, ErrInactiveAccount)
		return ErrInactiveAccount
	}
	if !user.Verified {
		s.inc(metrics.ResetFailure)
		s.emit(ctx, audit.EventPasswordReset, user.ID, false, ErrPendingVerification)
		return ErrPendingVerification
	}

	same, err := s.deps.Passwords.Verify(newPassword, user.PasswordHash)
	if err == nil && same {
		s.inc(metrics.ResetFailure)
		s.emit(ctx, audit.EventPasswordReset, user.ID, false, ErrPasswordReuse)
		return ErrPasswordReuse
	}

	hash, err := s.deps.Passwords.Hash(newPassword)
	if err != nil {
		s.inc(metrics.ResetFailure)
		return err
	}
	if err := s.deps.Users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		s.inc(metrics.ResetFailure)
		return err
	}

	// The grant is single-use and the old credential's sessions must
	// not survive it. Neither cleanup failure undoes the reset.
	if err := s.deps.Recovery.DeleteForUser(ctx, user.ID); err != nil {
		s.deps.Log.WithError(err).WithField("user_id", user.ID).
			Warn("consumed recovery grant not deleted")
	}
	if err := s.deps.Cache.Invalidate(ctx, user.ID); err != nil {
		s.deps.Log.WithError(err).WithField("user_id", user.ID).
			Warn("session record not invalidated after reset")
	} else {
		s.inc(metrics.CacheInvalidation)
	}

	s.inc(metrics.ResetSuccess)
	s.emit(ctx, audit.EventPasswordReset, user.ID, true, nil)
	return nil
}
