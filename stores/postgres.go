// Package stores provides the PostgreSQL implementation of the
// engine's persistence contracts (UserProvider, RecoveryTokenStore).
package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	authgrid "github.com/authgrid/authgrid"
	"github.com/authgrid/authgrid/policy"
)

const uniqueViolation = "23505"

// Postgres implements authgrid.UserProvider and
// authgrid.RecoveryTokenStore over database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects through the pgx stdlib driver and pings.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Schema is the DDL this store expects. Applied by EnsureSchema;
// deployments with managed migrations can run it themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role    TEXT NOT NULL,
	PRIMARY KEY (user_id, role)
);

CREATE TABLE IF NOT EXISTS recovery_tokens (
	user_id    UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	value      TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

const selectUser = `
SELECT u.id, u.email, u.password_hash, u.active, u.verified,
       u.created_at, u.updated_at,
       COALESCE(string_agg(r.role, ',' ORDER BY r.role), '')
FROM users u
LEFT JOIN user_roles r ON r.user_id = u.id
`

// Create inserts the user and its role rows in one transaction.
func (p *Postgres) Create(ctx context.Context, nu authgrid.NewUser) (authgrid.User, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return authgrid.User{}, err
	}
	defer tx.Rollback()

	var (
		id                   string
		createdAt, updatedAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		nu.Email, nu.PasswordHash,
	).Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authgrid.User{}, authgrid.ErrAccountExists
		}
		return authgrid.User{}, err
	}

	for _, role := range nu.Roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`,
			id, role.String(),
		); err != nil {
			return authgrid.User{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return authgrid.User{}, err
	}

	return authgrid.User{
		ID:           id,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Roles:        nu.Roles,
		Active:       true,
		Verified:     false,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// ByID fetches one user with its aggregated roles.
func (p *Postgres) ByID(ctx context.Context, id string) (authgrid.User, error) {
	return p.one(ctx, selectUser+`WHERE u.id = $1 GROUP BY u.id`, id)
}

// ByEmail fetches one user by unique email.
func (p *Postgres) ByEmail(ctx context.Context, email string) (authgrid.User, error) {
	return p.one(ctx, selectUser+`WHERE u.email = $1 GROUP BY u.id`, email)
}

func (p *Postgres) one(ctx context.Context, query string, arg any) (authgrid.User, error) {
	var (
		u        authgrid.User
		roleList string
	)
	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.Verified,
		&u.CreatedAt, &u.UpdatedAt, &roleList,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return authgrid.User{}, authgrid.ErrUserNotFound
	}
	if err != nil {
		return authgrid.User{}, err
	}

	if roleList != "" {
		roles, err := policy.ParseRoles(strings.Split(roleList, ","))
		if err != nil {
			return authgrid.User{}, fmt.Errorf("stores: corrupt role row for %s: %w", u.ID, err)
		}
		u.Roles = roles
	}
	return u, nil
}

// MarkVerified flips the verification flag.
func (p *Postgres) MarkVerified(ctx context.Context, id string) error {
	return p.update(ctx,
		`UPDATE users SET verified = TRUE, updated_at = now() WHERE id = $1`, id)
}

// SetPasswordHash replaces the stored credential hash.
func (p *Postgres) SetPasswordHash(ctx context.Context, id, hash string) error {
	return p.update(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

// SetActive flips the account's active flag.
func (p *Postgres) SetActive(ctx context.Context, id string, active bool) error {
	return p.update(ctx,
		`UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (p *Postgres) update(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authgrid.ErrUserNotFound
	}
	return nil
}

// SetRoles replaces the target's role rows in one transaction.
func (p *Postgres) SetRoles(ctx context.Context, id string, roles policy.Roles) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return authgrid.ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`,
			id, role.String(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Replace upserts the user's single recovery grant; an earlier grant
// dies with the write.
func (p *Postgres) Replace(ctx context.Context, token authgrid.RecoveryToken) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO recovery_tokens (user_id, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		token.UserID, token.Value, token.ExpiresAt,
	)
	return err
}

// FindByValue resolves a presented recovery value. Unknown values read
// as invalid-or-expired, not as a distinct absence.
func (p *Postgres) FindByValue(ctx context.Context, value string) (authgrid.RecoveryToken, error) {
	var t authgrid.RecoveryToken
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id, value, expires_at FROM recovery_tokens WHERE value = $1`,
		value,
	).Scan(&t.UserID, &t.Value, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authgrid.RecoveryToken{}, authgrid.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return authgrid.RecoveryToken{}, err
	}
	return t, nil
}

// DeleteForUser removes the user's grant. Idempotent.
func (p *Postgres) DeleteForUser(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM recovery_tokens WHERE user_id = $1`, userID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
