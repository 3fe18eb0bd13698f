// Package token signs and verifies the paired access and refresh tokens.
//
// Access tokens are short-lived and asymmetrically signed (Ed25519) so
// any process holding the public key can authenticate a request without
// shared secrets. Refresh tokens are longer-lived, HMAC-signed with a
// dedicated secret, and carry the rotating check value that ties them to
// the session cache record.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authgrid/authgrid/internal/check"
)

// Verification failure classes. Expiry is deliberately distinct from a
// bad signature: the boundary clears cookies on tampering but not on
// ordinary expiry.
var (
	ErrExpired  = errors.New("token expired")
	ErrTampered = errors.New("token signature invalid")
)

const minRefreshSecret = 32

// Config holds the signing material and lifetimes for both token kinds.
// The refresh secret must be distinct key material from the access key
// pair.
type Config struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	AccessPrivateKey []byte // raw ed25519 seed/key or PEM
	AccessPublicKey  []byte // raw ed25519 public key or PEM; sufficient alone for verify-only use
	RefreshSecret    []byte
	Issuer           string
	Leeway           time.Duration
}

// Pair is the product of a single issuance: both tokens plus the check
// value embedded in the refresh token and its one-way hash for the
// caller to persist in the session cache. Persistence is the caller's
// job; IssuePair has no side effects beyond generation.
type Pair struct {
	AccessToken  string
	RefreshToken string
	CheckValue   string
	CheckHash    string
}

type accessClaims struct {
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Check string `json:"check"`
	jwt.RegisteredClaims
}

// Manager is the token service. Safe for concurrent use after
// construction.
type Manager struct {
	cfg        Config
	signKey    ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	signerMode bool
}

// NewManager validates the key material. A manager built without the
// access private key can only verify (the validating process needs
// nothing else).
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("token: refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway out of range")
	}
	if len(cfg.RefreshSecret) < minRefreshSecret {
		return nil, fmt.Errorf("token: refresh secret must be >= %d bytes", minRefreshSecret)
	}

	m := &Manager{cfg: cfg}

	if len(cfg.AccessPrivateKey) > 0 {
		key, err := parsePrivateKey(cfg.AccessPrivateKey)
		if err != nil {
			return nil, err
		}
		m.signKey = key
		m.verifyKey = key.Public().(ed25519.PublicKey)
		m.signerMode = true
	}
	if len(cfg.AccessPublicKey) > 0 {
		pub, err := parsePublicKey(cfg.AccessPublicKey)
		if err != nil {
			return nil, err
		}
		m.verifyKey = pub
	}
	if m.verifyKey == nil {
		return nil, errors.New("token: access key material required")
	}

	return m, nil
}

// IssuePair produces an access token and a refresh token for subject,
// with a freshly generated check value in the refresh claims.
func (m *Manager) IssuePair(subject string) (Pair, error) {
	if !m.signerMode {
		return Pair{}, errors.New("token: manager is verify-only")
	}

	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodEdDSA, accessClaims{
		RegisteredClaims: m.registered(subject, now, m.cfg.AccessTTL),
	})
	accessSigned, err := access.SignedString(m.signKey)
	if err != nil {
		return Pair{}, err
	}

	checkValue := check.New()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		Check:            checkValue,
		RegisteredClaims: m.registered(subject, now, m.cfg.RefreshTTL),
	})
	refreshSigned, err := refresh.SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  accessSigned,
		RefreshToken: refreshSigned,
		CheckValue:   checkValue,
		CheckHash:    check.Hash(checkValue),
	}, nil
}

// VerifyAccess statelessly checks signature and expiry and returns the
// subject claim. The session cache is never consulted here;
// authentication and authorization are split on purpose.
func (m *Manager) VerifyAccess(tokenStr string) (string, error) {
	claims := &accessClaims{}
	_, err := m.parser().ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return "", classify(err)
	}
	if claims.Subject == "" {
		return "", ErrTampered
	}
	return claims.Subject, nil
}

// VerifyRefresh statelessly checks signature and expiry and returns the
// subject and check claims. A passing result does not prove the session
// is still alive; that requires the cache lookup.
func (m *Manager) VerifyRefresh(tokenStr string) (subject, checkValue string, err error) {
	claims := &refreshClaims{}
	_, err = m.parser().ParseWithClaims(tokenStr, claims, m.refreshKeyFunc)
	if err != nil {
		return "", "", classify(err)
	}
	if claims.Subject == "" || claims.Check == "" {
		return "", "", ErrTampered
	}
	return claims.Subject, claims.Check, nil
}

// RefreshSubject authenticates a refresh token's signature and returns
// its subject without validating expiry. Logout uses this so an expired
// but genuine token can still tear its session down.
func (m *Manager) RefreshSubject(tokenStr string) (string, error) {
	claims := &refreshClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, m.refreshKeyFunc)
	if err != nil {
		return "", classify(err)
	}
	if claims.Subject == "" {
		return "", ErrTampered
	}
	return claims.Subject, nil
}

func (m *Manager) refreshKeyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	return m.cfg.RefreshSecret, nil
}

func (m *Manager) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	if m.cfg.Issuer != "" {
		claims.Issuer = m.cfg.Issuer
	}
	return claims
}

func (m *Manager) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodEdDSA.Alg(),
			jwt.SigningMethodHS256.Alg(),
		}),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	return jwt.NewParser(opts...)
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}
	return fmt.Errorf("%w: %w", ErrTampered, err)
}

func parsePrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parsePublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}
