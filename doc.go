// Package authgrid is a credential lifecycle and authorization engine
// for split deployments: one service issues and rotates token pairs,
// an independent gateway validates them against a shared Redis session
// cache.
//
// # Model
//
// Every login or refresh issues a short-lived Ed25519 access token and
// a longer-lived HMAC refresh token carrying a rotating check value.
// The one-way hash of that value lives in the session cache record
// ({userId, roles, active, hash}); the record, not the token's stated
// expiry, decides whether a session is alive. Deleting the record
// revokes every outstanding refresh token for the user at once.
//
// # Usage
//
//	engine, err := authgrid.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithUserProvider(store).
//		WithRecoveryStore(store).
//		Build()
//
// The engine owns no user schema: persistence arrives through the
// UserProvider and RecoveryTokenStore interfaces. The stores package
// ships a PostgreSQL implementation, middleware the gateway guard
// chain, and metrics/export/prometheus the counter exporter.
package authgrid
