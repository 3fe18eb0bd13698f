package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/policy"
)

// SignupRequest creates an account. Principal is nil for self-service
// signup and set when an operator provisions the account.
type SignupRequest struct {
	Email     string
	Password  string
	Roles     policy.Roles
	Principal *policy.Subject
}

// Signup creates the account, announces it, and sends the verification
// code. The new account starts inactive-for-auth: Verified is false
// until the code round-trips.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (User, error) {
	email := normalizeEmail(req.Email)

	roles, err := s.assignableRoles(req)
	if err != nil {
		s.inc(metrics.SignupFailure)
		s.emit(ctx, audit.EventSignup, "", false, err)
		return User{}, err
	}

	hash, err := s.deps.Passwords.Hash(req.Password)
	if err != nil {
		s.inc(metrics.SignupFailure)
		return User{}, err
	}

	user, err := s.deps.Users.Create(ctx, NewUser{
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			s.inc(metrics.SignupDuplicate)
		} else {
			s.inc(metrics.SignupFailure)
		}
		s.emit(ctx, audit.EventSignup, "", false, err)
		return User{}, err
	}

	s.announceSignup(ctx, user)
	s.sendVerificationCode(ctx, user)

	s.inc(metrics.SignupSuccess)
	s.emit(ctx, audit.EventSignup, user.ID, true, nil)
	return user, nil
}

// assignableRoles resolves the requested role set against the signup
// policy and, for operator-provisioned accounts, the principal's
// privilege.
func (s *Service) assignableRoles(req SignupRequest) (policy.Roles, error) {
	if req.Principal == nil {
		if s.deps.Signup.Bootstrap {
			return policy.Roles{s.deps.Signup.BootstrapRole}, nil
		}
		return policy.Roles{s.deps.Signup.DefaultRole}, nil
	}

	if !policy.CanCreateUserAs(*req.Principal) {
		return nil, ErrInsufficientPrivilege
	}
	filtered := policy.FilterAssignableRoles(*req.Principal, req.Roles)
	return policy.NormalizeAssignment(filtered), nil
}

func (s *Service) announceSignup(ctx context.Context, user User) {
	if s.deps.Publisher == nil {
		return
	}
	ev := SignupEvent{
		UserID:     user.ID,
		Email:      user.Email,
		Roles:      user.Roles.Names(),
		OccurredAt: s.now().UTC(),
	}
	if err := s.deps.Publisher.PublishSignup(ctx, ev); err != nil {
		// Provisioning is eventually consistent; the account itself is
		// already durable.
		s.deps.Log.WithError(err).WithField("user_id", user.ID).
			Warn("signup event publish failed")
	}
}

func (s *Service) sendVerificationCode(ctx context.Context, user User) {
	if s.deps.Notifier == nil {
		return
	}
	verifier, err := s.otpFor(user.Email)
	if err != nil {
		s.deps.Log.WithError(err).Error("verification code derivation failed")
		return
	}
	code := verifier.Generate(s.now())
	if err := s.deps.Notifier.SendVerificationCode(ctx, user.Email, code); err != nil {
		s.deps.Log.WithError(err).WithField("user_id", user.ID).
			Warn("verification code delivery failed")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
