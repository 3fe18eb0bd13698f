package password

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong password entirely", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not match")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := testHasher(t)

	a, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	b, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same input must differ")
	}
}

func TestVerifyMalformedHashFailsClosed(t *testing.T) {
	h := testHasher(t)

	for _, encoded := range []string{
		"",
		"plainhash",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$AAAA",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA",
	} {
		ok, err := h.Verify("anything", encoded)
		if ok {
			t.Fatalf("malformed hash %q must never verify", encoded)
		}
		if !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", encoded, err)
		}
	}
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range weak {
		if _, err := NewHasher(cfg); err == nil {
			t.Errorf("config %d should have been rejected", i)
		}
	}
}
