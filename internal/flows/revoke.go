package flows

import (
	"context"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/policy"
)

// RevokeAccess deactivates the target account and kills its live
// session.
//
// Ordering is deliberate: the user row flips first, because it is
// authoritative, then the cache record is deleted so the gateway stops
// honoring the session immediately. A cache delete that fails twice is
// surfaced as ErrRevokeIncomplete; the deactivation is never rolled
// back, and the record's TTL bounds how long the stale entry survives.
func (s *Service) RevokeAccess(ctx context.Context, targetID string, principal policy.Subject) error {
	if targetID == principal.ID {
		s.inc(metrics.RevokeFailure)
		return ErrImpossibleSelfAction
	}

	target, err := s.deps.Users.ByID(ctx, targetID)
	if err != nil {
		s.inc(metrics.RevokeFailure)
		return err
	}
	if !policy.CanActOnUser(target.Subject(), principal) {
		s.inc(metrics.RevokeFailure)
		s.emit(ctx, audit.EventRevokeAccess, targetID, false, ErrInsufficientPrivilege)
		return ErrInsufficientPrivilege
	}

	if err := s.deps.Users.SetActive(ctx, targetID, false); err != nil {
		s.inc(metrics.RevokeFailure)
		s.emit(ctx, audit.EventRevokeAccess, targetID, false, err)
		return err
	}

	if err := s.invalidateWithRetry(ctx, targetID); err != nil {
		s.inc(metrics.RevokeIncomplete)
		s.emit(ctx, audit.EventRevokeAccess, targetID, false, ErrRevokeIncomplete)
		s.deps.Log.WithError(err).WithField("user_id", targetID).
			Error("revocation left a live cache record")
		return ErrRevokeIncomplete
	}

	s.inc(metrics.RevokeSuccess)
	s.inc(metrics.CacheInvalidation)
	s.emit(ctx, audit.EventRevokeAccess, targetID, true, nil)
	return nil
}

func (s *Service) invalidateWithRetry(ctx context.Context, userID string) error {
	if err := s.deps.Cache.Invalidate(ctx, userID); err == nil {
		return nil
	}
	return s.deps.Cache.Invalidate(ctx, userID)
}

// Deactivate is the administrative form of revocation: identical state
// transition, separate audit identity.
func (s *Service) Deactivate(ctx context.Context, targetID string, principal policy.Subject) error {
	err := s.RevokeAccess(ctx, targetID, principal)
	if err == nil {
		s.emit(ctx, audit.EventUserDeactivated, targetID, true, nil)
	}
	return err
}

// UpdateRoles changes the target's role set under the privilege rules
// and rewrites any live session record so the gateway sees the new set
// without waiting for a rotation.
func (s *Service) UpdateRoles(ctx context.Context, targetID string, roles policy.Roles, principal policy.Subject) error {
	target, err := s.deps.Users.ByID(ctx, targetID)
	if err != nil {
		return err
	}

	assigned := policy.NormalizeAssignment(roles)
	if !policy.CanUpdateRoles(target.Subject(), principal, assigned) {
		s.emit(ctx, audit.EventRolesUpdated, targetID, false, ErrInsufficientPrivilege)
		return ErrInsufficientPrivilege
	}

	if err := s.deps.Users.SetRoles(ctx, targetID, assigned); err != nil {
		return err
	}

	if rec, err := s.deps.Cache.Get(ctx, targetID); err == nil {
		rec.Roles = assigned
		if err := s.deps.Cache.Put(ctx, rec); err != nil {
			s.deps.Log.WithError(err).WithField("user_id", targetID).
				Warn("session record not updated after role change")
		}
	}

	s.emit(ctx, audit.EventRolesUpdated, targetID, true, nil)
	return nil
}
