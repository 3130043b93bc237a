package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/stayhold/internal/http/response"
	"github.com/diagnosis/stayhold/pkg/auth"
	"github.com/diagnosis/stayhold/pkg/logger"
)

const (
	defaultAdminActor = "admin"
	schedulerActor    = "cron"
	// ActorHeader names the admin on whose behalf a shared-secret call is made.
	ActorHeader = "X-Admin-Actor"
)

// Policy decides whether a request may proceed and who is acting. It may
// return a derived request carrying extra context.
type Policy interface {
	Authorize(r *http.Request) (*http.Request, string, bool)
}

// TrustedSchedulerHeader trusts requests carrying Header, which the hosting
// platform sets on its own scheduled invocations and strips from client
// traffic.
type TrustedSchedulerHeader struct {
	Header string
}

func (p TrustedSchedulerHeader) Authorize(r *http.Request) (*http.Request, string, bool) {
	if p.Header == "" || strings.TrimSpace(r.Header.Get(p.Header)) == "" {
		return r, "", false
	}
	return r, schedulerActor, true
}

// SharedSecret accepts a secret presented in Header or as a bearer token.
// When ActorFromHeader is set the actor comes from X-Admin-Actor.
type SharedSecret struct {
	Secret          auth.SecretMatcher
	Header          string
	Actor           string
	ActorFromHeader bool
}

func (p SharedSecret) Authorize(r *http.Request) (*http.Request, string, bool) {
	if !p.Secret.Configured() {
		return r, "", false
	}
	presented := ""
	if p.Header != "" {
		presented = strings.TrimSpace(r.Header.Get(p.Header))
	}
	if presented == "" {
		presented, _ = bearer(r)
	}
	if !p.Secret.Match(presented) {
		return r, "", false
	}

	actor := p.Actor
	if p.ActorFromHeader {
		if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
			actor = a
		}
	}
	if actor == "" {
		actor = defaultAdminActor
	}
	return r, actor, true
}

// AnyOf tries each policy in order and accepts the first match.
type AnyOf []Policy

func (ps AnyOf) Authorize(r *http.Request) (*http.Request, string, bool) {
	for _, p := range ps {
		if next, actor, ok := p.Authorize(r); ok {
			return next, actor, true
		}
	}
	return r, "", false
}

// Require rejects requests the policy does not accept and records the actor
// in the request context.
func Require(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorized, actor, ok := p.Authorize(r)
			if !ok {
				logger.WarnContext(r.Context(), "Unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				response.Unauthorized(w, "Unauthorized")
				return
			}
			ctx := context.WithValue(authorized.Context(), logger.ActorKey, actor)
			next.ServeHTTP(w, authorized.WithContext(ctx))
		})
	}
}

// Actor returns the actor recorded by Require.
func Actor(r *http.Request) string {
	if a, ok := r.Context().Value(logger.ActorKey).(string); ok && a != "" {
		return a
	}
	return defaultAdminActor
}
