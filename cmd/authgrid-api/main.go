// Command authgrid-api is the issuing service: it owns the user store,
// mints token pairs, and writes the shared session cache.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	authgrid "github.com/authgrid/authgrid"
	promexport "github.com/authgrid/authgrid/metrics/export/prometheus"
	"github.com/authgrid/authgrid/middleware"
	"github.com/authgrid/authgrid/notify"
	"github.com/authgrid/authgrid/policy"
	"github.com/authgrid/authgrid/stores"
	"github.com/authgrid/authgrid/stream"
)

type config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	PostgresDSN string        `env:"POSTGRES_DSN,required"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int           `env:"REDIS_DB" envDefault:"0"`
	Brokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AccessTTL   time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	// Secrets arrive base64-encoded so binary key material survives
	// environment transport.
	AccessPrivateKey string `env:"ACCESS_PRIVATE_KEY,required"`
	RefreshSecret    string `env:"REFRESH_SECRET,required"`
	CsrfSecret       string `env:"CSRF_SECRET,required"`
	OtpSecret        string `env:"OTP_SECRET,required"`

	Bootstrap bool   `env:"SIGNUP_BOOTSTRAP" envDefault:"false"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("authgrid-api exited")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := stores.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}

	builder := authgrid.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(store).
		WithRecoveryStore(store).
		WithNotifier(notify.NewLogNotifier(log)).
		WithLogger(log).
		WithAuditSink(authgrid.NewJSONWriterSink(os.Stdout))

	if len(cfg.Brokers) > 0 {
		publisher := stream.NewKafkaPublisher(cfg.Brokers)
		defer publisher.Close()
		builder = builder.WithPublisher(publisher)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router(engine, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.WithField("addr", cfg.Addr).Info("authgrid-api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func engineConfig(cfg config) (authgrid.Config, error) {
	out := authgrid.DefaultConfig()
	out.Token.AccessTTL = cfg.AccessTTL
	out.Token.RefreshTTL = cfg.RefreshTTL
	out.Signup.Bootstrap = cfg.Bootstrap

	for _, secret := range []struct {
		dst *[]byte
		src string
	}{
		{&out.Token.AccessPrivateKey, cfg.AccessPrivateKey},
		{&out.Token.RefreshSecret, cfg.RefreshSecret},
		{&out.CSRF.Secret, cfg.CsrfSecret},
		{&out.OTP.Secret, cfg.OtpSecret},
	} {
		decoded, err := base64.StdEncoding.DecodeString(secret.src)
		if err != nil {
			return authgrid.Config{}, errors.New("secrets must be base64 encoded")
		}
		*secret.dst = decoded
	}
	return out, nil
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type recoverRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

type rolesRequest struct {
	Roles []string `json:"roles" binding:"required"`
}

func router(engine *authgrid.Engine, log *logrus.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promexport.NewExporter(engine).Handler()))

	auth := r.Group("/auth")
	{
		auth.POST("/signup", func(c *gin.Context) {
			var req credentialsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			user, err := engine.Signup(c.Request.Context(), authgrid.SignupRequest{
				Email:    req.Email,
				Password: req.Password,
			})
			if err != nil {
				fail(c, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"userId": user.ID})
		})

		auth.POST("/verify", func(c *gin.Context) {
			var req verifyRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := engine.VerifyAccount(c.Request.Context(), req.Email, req.Code); err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		auth.POST("/login", func(c *gin.Context) {
			var req credentialsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := engine.Login(c.Request.Context(), req.Email, req.Password)
			if err != nil {
				fail(c, err)
				return
			}
			c.JSON(http.StatusOK, tokenResponse(result))
		})

		auth.POST("/refresh", func(c *gin.Context) {
			var req refreshRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := engine.Revalidate(c.Request.Context(), req.RefreshToken)
			if err != nil {
				fail(c, err)
				return
			}
			c.JSON(http.StatusOK, tokenResponse(result))
		})

		auth.POST("/logout", func(c *gin.Context) {
			var req refreshRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := engine.Logout(c.Request.Context(), req.RefreshToken); err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		auth.POST("/recover", func(c *gin.Context) {
			var req recoverRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := engine.RecoverCredentials(c.Request.Context(), req.Email); err != nil {
				fail(c, err)
				return
			}
			// Identical answer whether or not the account exists.
			c.Status(http.StatusAccepted)
		})

		auth.POST("/reset", func(c *gin.Context) {
			var req resetRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := engine.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		auth.GET("/csrf", func(c *gin.Context) {
			token, err := engine.CSRFToken()
			if err != nil {
				fail(c, err)
				return
			}
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie(middleware.CsrfCookieName, token, 0, "/", "", true, false)
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	users := r.Group("/users", requirePrincipal(engine, log))
	{
		users.POST("/:id/revoke", func(c *gin.Context) {
			err := engine.RevokeAccess(c.Request.Context(), c.Param("id"), principal(c))
			if err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		users.POST("/:id/deactivate", func(c *gin.Context) {
			err := engine.DeactivateUser(c.Request.Context(), c.Param("id"), principal(c))
			if err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		users.PUT("/:id/roles", func(c *gin.Context) {
			var req rolesRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			roles, err := policy.ParseRoles(req.Roles)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := engine.UpdateUserRoles(c.Request.Context(), c.Param("id"), roles, principal(c)); err != nil {
				fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})
	}

	return r
}

const principalKey = "authgrid.principal"

// requirePrincipal authenticates the bearer token and loads the live
// session record so admin handlers get a full policy subject.
func requirePrincipal(engine *authgrid.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		subject, err := engine.VerifyAccess(header[len(prefix):])
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		rec, err := engine.Cache().Get(c.Request.Context(), subject)
		if err != nil {
			log.WithError(err).WithField("user_id", subject).Warn("principal lookup failed")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if !rec.Active {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(principalKey, policy.Subject{ID: rec.UserID, Active: rec.Active, Roles: rec.Roles})
		c.Next()
	}
}

func principal(c *gin.Context) policy.Subject {
	if v, ok := c.Get(principalKey); ok {
		if s, ok := v.(policy.Subject); ok {
			return s
		}
	}
	return policy.Subject{}
}

func tokenResponse(result authgrid.LoginResult) gin.H {
	return gin.H{
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, authgrid.ErrInvalidCredentials),
		errors.Is(err, authgrid.ErrInvalidOrExpiredToken),
		errors.Is(err, authgrid.ErrInactiveAccount),
		errors.Is(err, authgrid.ErrPendingVerification):
		return http.StatusUnauthorized
	case errors.Is(err, authgrid.ErrInsufficientPrivilege),
		errors.Is(err, authgrid.ErrImpossibleSelfAction):
		return http.StatusForbidden
	case errors.Is(err, authgrid.ErrAccountExists),
		errors.Is(err, authgrid.ErrAlreadyVerified),
		errors.Is(err, authgrid.ErrPasswordReuse):
		return http.StatusConflict
	case errors.Is(err, authgrid.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
