// Package safecmp provides timing-safe equality helpers shared by the
// CSRF and session-cache verification paths.
package safecmp

import "crypto/subtle"

// Equal reports whether a and b are byte-equal without leaking the
// position of the first differing byte. On length mismatch it performs a
// dummy self-comparison so the caller's timing profile does not reveal
// the expected length either.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EqualString is Equal over the raw bytes of two strings.
func EqualString(a, b string) bool {
	return Equal([]byte(a), []byte(b))
}
