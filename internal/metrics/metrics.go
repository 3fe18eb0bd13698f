// Package metrics holds the engine's lock-free lifecycle counters.
//
// Counters live in cache-line-padded slots and are incremented with
// sync/atomic, so the write path never allocates or locks. Export
// formats live elsewhere and read Snapshot values.
package metrics

import "sync/atomic"

// ID names one counter.
type ID uint8

const (
	SignupSuccess ID = iota
	SignupDuplicate
	SignupFailure
	VerifySuccess
	VerifyFailure
	LoginSuccess
	LoginFailure
	RefreshSuccess
	RefreshFailure
	LogoutSuccess
	LogoutFailure
	RevokeSuccess
	RevokeIncomplete
	RevokeFailure
	RecoveryRequested
	ResetSuccess
	ResetFailure
	CacheHit
	CacheMiss
	CacheInvalidation
	idCount
)

var names = [idCount]string{
	SignupSuccess:     "signup_success",
	SignupDuplicate:   "signup_duplicate",
	SignupFailure:     "signup_failure",
	VerifySuccess:     "verify_success",
	VerifyFailure:     "verify_failure",
	LoginSuccess:      "login_success",
	LoginFailure:      "login_failure",
	RefreshSuccess:    "refresh_success",
	RefreshFailure:    "refresh_failure",
	LogoutSuccess:     "logout_success",
	LogoutFailure:     "logout_failure",
	RevokeSuccess:     "revoke_success",
	RevokeIncomplete:  "revoke_incomplete",
	RevokeFailure:     "revoke_failure",
	RecoveryRequested: "recovery_requested",
	ResetSuccess:      "reset_success",
	ResetFailure:      "reset_failure",
	CacheHit:          "cache_hit",
	CacheMiss:         "cache_miss",
	CacheInvalidation: "cache_invalidation",
}

// String returns the counter's stable export name.
func (id ID) String() string {
	if id >= idCount {
		return "unknown"
	}
	return names[id]
}

// IDs lists every counter in declaration order, for exporters.
func IDs() []ID {
	out := make([]ID, idCount)
	for i := range out {
		out[i] = ID(i)
	}
	return out
}

const cacheLine = 64

type padded struct {
	value uint64
	_     [cacheLine - 8]byte
}

// Registry is the counter store. A nil or disabled registry absorbs
// writes silently so flows never branch on observability config.
type Registry struct {
	enabled  bool
	counters [idCount]padded
}

func NewRegistry(enabled bool) *Registry {
	return &Registry{enabled: enabled}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) Inc(id ID) {
	if r == nil || !r.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies every counter at one point in time. Values from a
// disabled registry are all zero.
func (r *Registry) Snapshot() map[ID]uint64 {
	out := make(map[ID]uint64, int(idCount))
	for id := ID(0); id < idCount; id++ {
		out[id] = r.Value(id)
	}
	return out
}
