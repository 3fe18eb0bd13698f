// Package audit carries the engine's structured security event trail.
// Events are emitted by the lifecycle flows and forwarded asynchronously
// to a caller-supplied sink.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Lifecycle event types.
const (
	EventSignup           = "signup"
	EventAccountVerified  = "account_verified"
	EventLogin            = "login"
	EventRefresh          = "refresh"
	EventLogout           = "logout"
	EventRevokeAccess     = "revoke_access"
	EventRecoveryRequest  = "recovery_request"
	EventPasswordReset    = "password_reset"
	EventRolesUpdated     = "roles_updated"
	EventUserDeactivated  = "user_deactivated"
)

// Event is a single audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
}
