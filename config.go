package authgrid

import (
	"errors"
	"time"

	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/policy"
)

// Config is the engine's sectioned configuration. Zero values are
// filled with defaults at Build; Validate rejects what defaults cannot
// repair (missing key material, inverted TTLs).
type Config struct {
	Token    TokenConfig
	Cache    CacheConfig
	Password password.Config
	CSRF     CSRFConfig
	OTP      OTPConfig
	Recovery RecoveryConfig
	Signup   SignupConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig holds signing material and lifetimes for both token
// kinds.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AccessPrivateKey is a raw ed25519 seed/key or PEM. Omit it on a
	// verify-only deployment and supply AccessPublicKey instead.
	AccessPrivateKey []byte
	AccessPublicKey  []byte
	RefreshSecret    []byte
	Issuer           string
	Leeway           time.Duration
}

// CacheConfig parameterizes the shared session cache.
type CacheConfig struct {
	Prefix string
	// TTL bounds how long a record can outlive its owning flow. Zero
	// keeps records until invalidated; production deployments should
	// set it slightly above the refresh TTL.
	TTL time.Duration
}

// CSRFConfig holds the double-submit token secret.
type CSRFConfig struct {
	Secret []byte
}

// OTPConfig holds the master verification-code secret; per-account
// secrets are derived from it.
type OTPConfig struct {
	Secret []byte
	Period time.Duration
	Digits int
	Skew   int
}

// RecoveryConfig bounds the recovery grant lifetime.
type RecoveryConfig struct {
	TokenTTL time.Duration
}

// SignupConfig controls the roles self-service signup may produce.
type SignupConfig struct {
	// Bootstrap grants BootstrapRole to unauthenticated signups. It
	// exists to create the first operator and must be turned off once
	// that account exists.
	Bootstrap     bool
	BootstrapRole policy.Role
	DefaultRole   policy.Role
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull favors flow latency over audit completeness under
	// backpressure; dropped counts stay observable.
	DropIfFull bool
}

// MetricsConfig switches the lifecycle counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a Config with every defaultable field filled.
// Key material is never defaulted.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			Prefix: "auth",
			TTL:    8 * 24 * time.Hour,
		},
		Password: password.DefaultConfig(),
		OTP: OTPConfig{
			Period: time.Hour,
			Digits: 6,
			Skew:   1,
		},
		Recovery: RecoveryConfig{TokenTTL: 24 * time.Hour},
		Signup: SignupConfig{
			BootstrapRole: policy.RoleSysAdmin,
			DefaultRole:   policy.RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks the parts defaults cannot repair. Token key material
// is validated in depth by the token manager at Build.
func (c Config) Validate() error {
	if len(c.Token.RefreshSecret) == 0 {
		return errors.New("config: token refresh secret required")
	}
	if len(c.Token.AccessPrivateKey) == 0 && len(c.Token.AccessPublicKey) == 0 {
		return errors.New("config: token access key material required")
	}
	if len(c.CSRF.Secret) == 0 {
		return errors.New("config: csrf secret required")
	}
	if len(c.OTP.Secret) == 0 {
		return errors.New("config: otp secret required")
	}
	if c.Recovery.TokenTTL < 0 {
		return errors.New("config: recovery token ttl must be >= 0")
	}
	if !c.Signup.DefaultRole.Valid() || !c.Signup.BootstrapRole.Valid() {
		return errors.New("config: signup roles out of range")
	}
	if c.Signup.Bootstrap && c.Signup.BootstrapRole == policy.RoleGuest {
		return errors.New("config: bootstrap role must carry privilege")
	}
	return nil
}

// withDefaults overlays DefaultConfig onto unset fields, leaving the
// caller's explicit choices alone.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = def.Token.AccessTTL
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = def.Cache.Prefix
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Password == (password.Config{}) {
		c.Password = def.Password
	}
	if c.OTP.Period <= 0 {
		c.OTP.Period = def.OTP.Period
	}
	if c.OTP.Digits == 0 {
		c.OTP.Digits = def.OTP.Digits
	}
	if c.OTP.Skew == 0 {
		c.OTP.Skew = def.OTP.Skew
	}
	if c.Recovery.TokenTTL == 0 {
		c.Recovery.TokenTTL = def.Recovery.TokenTTL
	}
	// Role zero value is guest; an unset default is promoted to the
	// standard signup role. Guest-by-default is not configurable.
	if c.Signup.DefaultRole == policy.RoleGuest {
		c.Signup.DefaultRole = def.Signup.DefaultRole
	}
	if c.Signup.BootstrapRole == policy.RoleGuest {
		c.Signup.BootstrapRole = def.Signup.BootstrapRole
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	return c
}
