package flows

import (
	"context"
	"errors"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
)

// VerifyAccount confirms ownership of the signup email by checking the
// windowed one-time code. Unknown and deactivated accounts both read as
// ErrInvalidCredentials so the endpoint does not disclose which emails
// exist. Idempotence is rejected loudly: a second confirmation returns
// ErrAlreadyVerified rather than silently passing, so a replayed code
// is visible.
func (s *Service) VerifyAccount(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	user, err := s.deps.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = ErrInvalidCredentials
		}
		s.inc(metrics.VerifyFailure)
		s.emit(ctx, audit.EventAccountVerified, "", false, err)
		return err
	}
	if !user.Active {
		s.inc(metrics.VerifyFailure)
		s.emit(ctx, audit.EventAccountVerified, user.ID, false, ErrInvalidCredentials)
		return ErrInvalidCredentials
	}
	if user.Verified {
		s.inc(metrics.VerifyFailure)
		s.emit(ctx, audit.EventAccountVerified, user.ID, false, ErrAlreadyVerified)
		return ErrAlreadyVerified
	}

	verifier, err := s.otpFor(email)
	if err != nil {
		return err
	}
	if !verifier.Verify(code, s.now()) {
		s.inc(metrics.VerifyFailure)
		s.emit(ctx, audit.EventAccountVerified, user.ID, false, ErrInvalidOrExpiredToken)
		return ErrInvalidOrExpiredToken
	}

	if err := s.deps.Users.MarkVerified(ctx, user.ID); err != nil {
		s.inc(metrics.VerifyFailure)
		return err
	}

	s.inc(metrics.VerifySuccess)
	s.emit(ctx, audit.EventAccountVerified, user.ID, true, nil)
	return nil
}
