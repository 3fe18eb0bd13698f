package csrf

import (
	"errors"
	"strings"
	"testing"
)

func testService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService([]byte("csrf-server-secret"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	s := testService(t)

	token, err := s.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if err := s.Verify(token, token); err != nil {
		t.Fatalf("round-trip must verify, got %v", err)
	}
}

func TestVerifyMissing(t *testing.T) {
	s := testService(t)
	token, _ := s.Generate()

	if err := s.Verify("", token); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	if err := s.Verify(token, ""); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestVerifyMismatchBeforeSignatureCheck(t *testing.T) {
	s := testService(t)
	a, _ := s.Generate()
	b, _ := s.Generate()

	// Both tokens are individually valid; the pair check must fail first.
	if err := s.Verify(a, b); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifyTamperedValue(t *testing.T) {
	s := testService(t)
	token, _ := s.Generate()

	value, signature, _ := strings.Cut(token, ".")
	flipped := flipHexDigit(value) + "." + signature
	if err := s.Verify(flipped, flipped); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for mutated value, got %v", err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	s := testService(t)
	token, _ := s.Generate()

	value, signature, _ := strings.Cut(token, ".")
	forged := value + "." + flipHexDigit(signature)
	if err := s.Verify(forged, forged); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for mutated signature, got %v", err)
	}
}

func TestVerifyTokenShape(t *testing.T) {
	s := testService(t)

	for _, token := range []string{"", "novalue", ".sig", "value.", "a.b.c"} {
		if s.VerifyToken(token) {
			t.Fatalf("malformed token %q must not verify", token)
		}
	}
}

func TestTokensFromDifferentSecretsRejected(t *testing.T) {
	a := testService(t)
	b, err := NewService([]byte("another-secret"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	token, _ := a.Generate()
	if b.VerifyToken(token) {
		t.Fatal("token signed under a different secret must not verify")
	}
}

func flipHexDigit(s string) string {
	replacement := byte('0')
	if s[0] == '0' {
		replacement = '1'
	}
	return string(replacement) + s[1:]
}
