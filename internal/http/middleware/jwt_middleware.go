package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/stayhold/pkg/auth"
	"github.com/diagnosis/stayhold/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// AdminJWT accepts a bearer token signed with Secret that carries the admin
// role. The token subject becomes the actor.
type AdminJWT struct {
	Secret string
}

func (p AdminJWT) Authorize(r *http.Request) (*http.Request, string, bool) {
	if p.Secret == "" {
		return r, "", false
	}
	raw, ok := bearer(r)
	if !ok {
		return r, "", false
	}
	claims, err := auth.Parse(raw, p.Secret)
	if err != nil {
		logger.DebugContext(r.Context(), "Rejected admin token", "error", err)
		return r, "", false
	}
	if claims.Role != auth.RoleAdmin {
		return r, "", false
	}
	actor := claims.Sub
	if actor == "" {
		actor = defaultAdminActor
	}
	ctx := context.WithValue(r.Context(), CtxClaims, claims)
	return r.WithContext(ctx), actor, true
}

// Claims returns the admin token claims of an authorized request.
func Claims(r *http.Request) *auth.Claims {
	v, _ := r.Context().Value(CtxClaims).(*auth.Claims)
	return v
}

func bearer(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}
