// Package middleware provides the gateway-side guard chain: bearer
// authentication, cache-backed authorization, and the CSRF
// double-submit check. The chain holds no issuing capability; it needs
// only the access public key, the Redis cache, and the CSRF secret.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/authgrid/authgrid/csrf"
	"github.com/authgrid/authgrid/policy"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// Cookie and header names shared with browser clients. The __Host-
// prefix pins the CSRF cookie to this origin over HTTPS.
const (
	CsrfCookieName = "__Host-csrf"
	CsrfHeaderName = "x-csrf-token"
)

// Agent is the authenticated caller attached to the request context by
// Authorize.
type Agent struct {
	UserID string
	Roles  policy.Roles
}

// Subject converts the agent for policy checks inside handlers.
func (a Agent) Subject() policy.Subject {
	return policy.Subject{ID: a.UserID, Active: true, Roles: a.Roles}
}

type subjectKey struct{}
type agentKey struct{}

// SubjectFromContext returns the token subject set by Authenticate.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// AgentFromContext returns the authorized agent set by Authorize.
func AgentFromContext(ctx context.Context) (Agent, bool) {
	a, ok := ctx.Value(agentKey{}).(Agent)
	return a, ok
}

// Chain wires the guards. Log is optional.
type Chain struct {
	Tokens *token.Manager
	Cache  *session.Cache
	CSRF   *csrf.Service
	Log    logrus.FieldLogger
}

// Authenticate verifies the bearer access token statelessly and puts
// its subject on the context. No cache read happens here.
func (c *Chain) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}

		subject, err := c.Tokens.VerifyAccess(raw)
		if err != nil {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authorize reads the session record for the authenticated subject and
// enforces role membership. An absent record is a 401, not a 403: the
// session is gone, whoever the caller was. Must run after
// Authenticate.
func (c *Chain) Authorize(required ...policy.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}

			rec, err := c.Cache.Get(r.Context(), subject)
			if err != nil {
				// Covers revoked sessions, malformed ids and cache
				// outages alike; the gateway fails closed.
				c.warn(err, subject)
				unauthorized(w)
				return
			}
			if !rec.Active {
				unauthorized(w)
				return
			}
			if len(required) > 0 && !rec.Roles.ContainsAny(required...) {
				forbidden(w)
				return
			}

			agent := Agent{UserID: rec.UserID, Roles: rec.Roles}
			ctx := context.WithValue(r.Context(), agentKey{}, agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifyCsrf runs the double-submit check on state-changing methods.
// Safe methods pass untouched.
func (c *Chain) VerifyCsrf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		var cookieToken string
		if cookie, err := r.Cookie(CsrfCookieName); err == nil {
			cookieToken = cookie.Value
		}
		headerToken := r.Header.Get(CsrfHeaderName)

		if err := c.CSRF.Verify(cookieToken, headerToken); err != nil {
			forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Chain) warn(err error, subject string) {
	if c.Log == nil {
		return
	}
	c.Log.WithError(err).WithField("user_id", subject).
		Warn("authorization lookup failed")
}

func bearerToken(value string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) || len(value) == len(prefix) {
		return "", false
	}
	return value[len(prefix):], true
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, "forbidden", http.StatusForbidden)
}
