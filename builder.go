package authgrid

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/authgrid/authgrid/csrf"
	"github.com/authgrid/authgrid/internal/audit"
	"github.com/authgrid/authgrid/internal/flows"
	"github.com/authgrid/authgrid/internal/metrics"
	"github.com/authgrid/authgrid/otp"
	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// Builder assembles an Engine. One shot: a used builder refuses a
// second Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider  UserProvider
	recoveryStore RecoveryTokenStore
	publisher     EventPublisher
	notifier      Notifier
	logger        logrus.FieldLogger
	auditSink     AuditSink

	built bool
}

// New returns a builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client backing the shared session cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider supplies the account persistence implementation.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithRecoveryStore supplies the recovery grant persistence.
func (b *Builder) WithRecoveryStore(rs RecoveryTokenStore) *Builder {
	b.recoveryStore = rs
	return b
}

// WithPublisher supplies the lifecycle event publisher. Optional; no
// events are announced without one.
func (b *Builder) WithPublisher(p EventPublisher) *Builder {
	b.publisher = p
	return b
}

// WithNotifier supplies the out-of-band credential delivery channel.
// Optional; codes and recovery tokens go nowhere without one.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger supplies the structured logger. Optional; the engine is
// silent without one.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink supplies the audit event destination. Optional when
// auditing is disabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the wiring and constructs the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.recoveryStore == nil {
		return nil, errors.New("recovery token store required")
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:        cfg.Token.AccessTTL,
		RefreshTTL:       cfg.Token.RefreshTTL,
		AccessPrivateKey: cfg.Token.AccessPrivateKey,
		AccessPublicKey:  cfg.Token.AccessPublicKey,
		RefreshSecret:    cfg.Token.RefreshSecret,
		Issuer:           cfg.Token.Issuer,
		Leeway:           cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	csrfService, err := csrf.NewService(cfg.CSRF.Secret)
	if err != nil {
		return nil, err
	}

	cache := session.NewCache(b.redis, cfg.Cache.Prefix, cfg.Cache.TTL)

	var dispatcher *audit.Dispatcher
	if cfg.Audit.Enabled {
		dispatcher = audit.NewDispatcher(b.auditSink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull)
	}
	registry := metrics.NewRegistry(cfg.Metrics.Enabled)

	service, err := flows.New(flows.Deps{
		Users:     b.userProvider,
		Recovery:  b.recoveryStore,
		Tokens:    tokens,
		Cache:     cache,
		Passwords: hasher,
		OTP: otp.Config{
			Secret: cfg.OTP.Secret,
			Period: cfg.OTP.Period,
			Digits: cfg.OTP.Digits,
			Skew:   cfg.OTP.Skew,
		},
		Publisher: b.publisher,
		Notifier:  b.notifier,
		Audit:     dispatcher,
		Metrics:   registry,
		Log:       b.logger,
		Signup: flows.SignupPolicy{
			Bootstrap:     cfg.Signup.Bootstrap,
			BootstrapRole: cfg.Signup.BootstrapRole,
			DefaultRole:   cfg.Signup.DefaultRole,
		},
		RecoveryTTL: cfg.Recovery.TokenTTL,
	})
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	b.built = true

	return &Engine{
		config:  cfg,
		service: service,
		tokens:  tokens,
		cache:   cache,
		csrf:    csrfService,
		audit:   dispatcher,
		metrics: registry,
	}, nil
}
