// Command authgrid-gateway is the validating service. It holds no
// issuing capability: only the access public key, the shared Redis
// session cache, and the CSRF secret. Revocation reaches it through
// the cache with no coordination with the issuing service.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/authgrid/authgrid/csrf"
	"github.com/authgrid/authgrid/middleware"
	"github.com/authgrid/authgrid/policy"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

type config struct {
	Addr        string        `env:"ADDR" envDefault:":8081"`
	MetricsAddr string        `env:"METRICS_ADDR" envDefault:":9090"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int           `env:"REDIS_DB" envDefault:"0"`
	CachePrefix string        `env:"CACHE_PREFIX" envDefault:"auth"`
	AccessTTL   time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	AccessPublicKey string `env:"ACCESS_PUBLIC_KEY,required"`
	RefreshSecret   string `env:"REFRESH_SECRET,required"`
	CsrfSecret      string `env:"CSRF_SECRET,required"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("authgrid-gateway exited")
	}
}

func run(log *logrus.Logger) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	publicKey, err := base64.StdEncoding.DecodeString(cfg.AccessPublicKey)
	if err != nil {
		return errors.New("ACCESS_PUBLIC_KEY must be base64 encoded")
	}
	refreshSecret, err := base64.StdEncoding.DecodeString(cfg.RefreshSecret)
	if err != nil {
		return errors.New("REFRESH_SECRET must be base64 encoded")
	}
	csrfSecret, err := base64.StdEncoding.DecodeString(cfg.CsrfSecret)
	if err != nil {
		return errors.New("CSRF_SECRET must be base64 encoded")
	}

	// Verify-only manager: no private key ever reaches this process.
	tokens, err := token.NewManager(token.Config{
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		AccessPublicKey: publicKey,
		RefreshSecret:   refreshSecret,
	})
	if err != nil {
		return err
	}

	csrfService, err := csrf.NewService(csrfSecret)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	cache := session.NewCache(rdb, cfg.CachePrefix, 0)

	chain := &middleware.Chain{
		Tokens: tokens,
		Cache:  cache,
		CSRF:   csrfService,
		Log:    log,
	}

	mux := http.NewServeMux()
	mux.Handle("/me", protect(chain, meHandler()))
	mux.Handle("/admin/ping", protect(chain, pingHandler(), policy.RoleAdmin, policy.RoleSysAdmin))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe() }()
	go func() { errCh <- http.ListenAndServe(cfg.MetricsAddr, metricsMux(cache, log)) }()
	log.WithField("addr", cfg.Addr).Info("authgrid-gateway listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// protect applies the full guard order: authenticate, authorize, then
// the CSRF double-submit check for state-changing methods.
func protect(chain *middleware.Chain, handler http.Handler, roles ...policy.Role) http.Handler {
	return chain.Authenticate(chain.Authorize(roles...)(chain.VerifyCsrf(handler)))
}

func meHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, ok := middleware.AgentFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId": agent.UserID,
			"roles":  agent.Roles.Names(),
		})
	})
}

func pingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

func metricsMux(cache *session.Cache, log *logrus.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			log.WithError(err).Warn("cache health check failed")
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
