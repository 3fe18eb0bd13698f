package flows

import (
	"context"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/session"
)

// LoginResult carries the issued pair plus the authenticated record.
type LoginResult struct {
	Tokens TokenPair
	User   User
}

// Login authenticates the credential pair and establishes the session.
//
// Guard order is fixed: credential check first, then account state.
// An attacker probing a deactivated account with a wrong password
// learns nothing about the account's existence or state.
func (s *Service) Login(ctx context.Context, email, plaintext string) (LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.deps.Users.ByEmail(ctx, email)
	if err != nil {
		// Burn the same hashing cost as the real path before rejecting.
		_, _ = s.deps.Passwords.Verify(plaintext, s.decoyHash)
		s.inc(metrics.LoginFailure)
		s.emit(ctx, audit.EventLogin, "", false, ErrInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := s.deps.Passwords.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		s.inc(metrics.LoginFailure)
		s.emit(ctx, audit.EventLogin, user.ID, false, ErrInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.Active {
		s.inc(metrics.LoginFailure)
		s.emit(ctx, audit.EventLogin, user.ID, false, ErrInactiveAccount)
		return LoginResult{}, ErrInactiveAccount
	}
	if !user.Verified {
		s.inc(metrics.LoginFailure)
		s.emit(ctx, audit.EventLogin, user.ID, false, ErrPendingVerification)
		return LoginResult{}, ErrPendingVerification
	}

	tokens, err := s.establishSession(ctx, user)
	if err != nil {
		s.inc(metrics.LoginFailure)
		return LoginResult{}, err
	}

	s.inc(metrics.LoginSuccess)
	s.emit(ctx, audit.EventLogin, user.ID, true, nil)
	return LoginResult{Tokens: tokens, User: user}, nil
}

// establishSession issues a fresh pair and makes the cache record match
// it. The cache write must land before the tokens are handed out; a
// pair whose check hash is not in the cache is dead on arrival at the
// gateway.
func (s *Service) establishSession(ctx context.Context, user User) (TokenPair, error) {
	pair, err := s.deps.Tokens.IssuePair(user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	rec := session.Record{
		UserID: user.ID,
		Roles:  user.Roles,
		Active: user.Active,
		Hash:   pair.CheckHash,
	}
	if err := s.deps.Cache.Put(ctx, rec); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
