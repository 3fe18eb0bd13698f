package authgrid

import (
	"io"

	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/flows"
)

// Domain types and collaborator contracts. These alias the flow-layer
// definitions so integrators and the engine agree on one shape.

// User is the persisted account record.
type User = flows.User

// NewUser is the creation payload handed to a UserProvider.
type NewUser = flows.NewUser

// RecoveryToken is a single-use credential recovery grant; at most one
// exists per user.
type RecoveryToken = flows.RecoveryToken

// UserProvider is the persistence contract the integrator supplies.
//
// Create returns ErrAccountExists on a duplicate email; lookups return
// ErrUserNotFound for absent records. The engine owns no user schema
// beyond this interface.
type UserProvider = flows.UserStore

// RecoveryTokenStore persists recovery grants.
type RecoveryTokenStore = flows.RecoveryStore

// EventPublisher announces lifecycle events to downstream services.
// Publish failures are logged, never rolled back into the flow.
type EventPublisher = flows.Publisher

// SignupEvent is the payload delivered through an EventPublisher after
// account creation.
type SignupEvent = flows.SignupEvent

// Notifier delivers out-of-band credentials (verification codes,
// recovery tokens) to the account owner.
type Notifier = flows.Notifier

// SignupRequest creates an account; Principal is nil for self-service
// signup.
type SignupRequest = flows.SignupRequest

// TokenPair is the issued access/refresh pair.
type TokenPair = flows.TokenPair

// LoginResult carries the issued pair plus the authenticated record.
type LoginResult = flows.LoginResult

// Audit surface, re-exported for integrators wiring a sink.
type (
	AuditEvent     = audit.Event
	AuditSink      = audit.Sink
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink returns a buffered in-memory audit sink, mostly for
// tests and development.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON event per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
