package flows

import (
	"context"
	"time"

	"github.com/authgrid/authgrid/policy"
)

// User is the persisted account record as the flows see it. The zero
// value is not a valid user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        policy.Roles
	Active       bool
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject converts the record into a policy subject for privilege
// checks.
func (u User) Subject() policy.Subject {
	return policy.Subject{ID: u.ID, Active: u.Active, Roles: u.Roles}
}

// NewUser is the creation payload handed to the user store.
type NewUser struct {
	Email        string
	PasswordHash string
	Roles        policy.Roles
}

// RecoveryToken is a single-use credential recovery grant. At most one
// exists per user; issuing a new one replaces the old.
type RecoveryToken struct {
	UserID    string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the grant is past its expiry at now.
func (t RecoveryToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// UserStore is the persistence contract for accounts.
//
// Create returns ErrAccountExists on a duplicate email. ByID and
// ByEmail return ErrUserNotFound for absent records. Mutators return
// ErrUserNotFound when the target row does not exist.
type UserStore interface {
	Create(ctx context.Context, nu NewUser) (User, error)
	ByID(ctx context.Context, id string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	MarkVerified(ctx context.Context, id string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetRoles(ctx context.Context, id string, roles policy.Roles) error
	SetActive(ctx context.Context, id string, active bool) error
}

// RecoveryStore persists recovery grants. FindByValue returns
// ErrInvalidOrExpiredToken for an unknown value; DeleteForUser is
// idempotent.
type RecoveryStore interface {
	Replace(ctx context.Context, token RecoveryToken) error
	FindByValue(ctx context.Context, value string) (RecoveryToken, error)
	DeleteForUser(ctx context.Context, userID string) error
}

// SignupEvent is the provisioning payload announced after a successful
// account creation.
type SignupEvent struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher announces lifecycle events to downstream services. A
// publish failure never rolls the triggering flow back.
type Publisher interface {
	PublishSignup(ctx context.Context, ev SignupEvent) error
}

// Notifier delivers out-of-band credentials to the account owner.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendRecoveryToken(ctx context.Context, email, token string) error
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
