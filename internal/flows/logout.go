package flows

import (
	"context"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
)

// Logout tears down the subject's session by deleting the cache record.
//
// Only the signature is checked, not expiry: a user holding an expired
// but genuine refresh token may still want the server-side session
// gone. Forged tokens are rejected before any state is touched.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	subject, err := s.deps.Tokens.RefreshSubject(refreshToken)
	if err != nil {
		s.inc(metrics.LogoutFailure)
		s.emit(ctx, audit.EventLogout, "", false, ErrInvalidOrExpiredToken)
		return ErrInvalidOrExpiredToken
	}

	if err := s.deps.Cache.Invalidate(ctx, subject); err != nil {
		s.inc(metrics.LogoutFailure)
		s.emit(ctx, audit.EventLogout, subject, false, err)
		return err
	}

	s.inc(metrics.LogoutSuccess)
	s.inc(metrics.CacheInvalidation)
	s.emit(ctx, audit.EventLogout, subject, true, nil)
	return nil
}
