// Package session implements the shared revocation/authorization cache.
//
// The token-issuing service writes one record per user; the validating
// gateway reads it on every protected request. The record, not the
// refresh token's stated expiry, is the source of truth for whether a
// session is still alive: deleting it instantly revokes every
// outstanding refresh token for that user, however cryptographically
// valid they remain.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/authgrid/authgrid/internal/check"
	"github.com/authgrid/authgrid/internal/safecmp"
	"github.com/authgrid/authgrid/policy"
)

var (
	// ErrNotFound is returned by Get when no record exists for the user.
	ErrNotFound = errors.New("session record not found")
	// ErrMalformedKey is returned when the user id is not a UUID; the key
	// space is shared with another deployable, so shape is enforced at
	// the boundary.
	ErrMalformedKey = errors.New("malformed session cache key")
)

// Record is the per-user cache value. JSON field names are wire contract
// with the gateway process and must not change.
type Record struct {
	UserID string       `json:"userId"`
	Roles  policy.Roles `json:"roles"`
	Active bool         `json:"active"`
	Hash   string       `json:"hash"`
}

// Cache is the Redis-backed session store. One record per user,
// last-write-wins.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCache wraps an existing Redis client. A zero ttl keeps records
// until explicitly invalidated; a positive ttl bounds how long a stale
// record can outlive its owning flow.
func NewCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "auth"
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Key returns the namespaced cache key for a user id.
func (c *Cache) Key(userID string) string {
	return c.prefix + ":user:" + userID
}

// Put overwrites the record for rec.UserID. Idempotent; concurrent
// writers race under last-write-wins, which is the documented contract:
// the cache holds a single refresh lineage per user, and the loser's
// rotated tokens die on their next use.
func (c *Cache) Put(ctx context.Context, rec Record) error {
	if err := uuid.Validate(rec.UserID); err != nil {
		return ErrMalformedKey
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}
	return c.rdb.Set(ctx, c.Key(rec.UserID), payload, c.ttl).Err()
}

// Get is the sole authorization read path. Callers must reject access
// when ErrNotFound is returned.
func (c *Cache) Get(ctx context.Context, userID string) (Record, error) {
	if err := uuid.Validate(userID); err != nil {
		return Record{}, ErrMalformedKey
	}
	payload, err := c.rdb.Get(ctx, c.Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode record: %w", err)
	}
	return rec, nil
}

// Invalidate deletes the user's record, instantly revoking all
// outstanding refresh tokens for that user. Deleting an absent record is
// not an error; calling twice leaves the same observable state as once.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if err := uuid.Validate(userID); err != nil {
		return ErrMalformedKey
	}
	return c.rdb.Del(ctx, c.Key(userID)).Err()
}

// Ping checks connectivity to the backing Redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Validate hashes the presented check value and compares it against the
// stored hash in constant time. An absent record yields false, not an
// error: "never logged in" and "revoked" must be indistinguishable to
// the caller.
func (c *Cache) Validate(ctx context.Context, userID, presented string) (bool, error) {
	rec, err := c.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return safecmp.EqualString(rec.Hash, check.Hash(presented)), nil
}
