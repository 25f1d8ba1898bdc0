package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"schoold/internal/auth"
)

type ctxKey int

const identityKey ctxKey = iota

// IdentityFrom returns the authenticated principal attached by sessionGuard.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(auth.Identity)
	return ident, ok
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// sessionGuard authenticates protected routes. The session-version lookup
// runs on every request: revocation must take effect immediately, not when
// the access token happens to expire.
func (a *API) sessionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		claims, err := a.codec.VerifyAccess(tok)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		uid, err := uuid.Parse(claims.UserID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		if claims.SessionVersion != "" {
			ctx, cancel := withTimeout(r.Context())
			live, err := a.auth.SessionVersion(ctx, uid)
			cancel()
			if err != nil {
				a.respondAuthError(w, err)
				return
			}
			if live == "" || live != claims.SessionVersion {
				respondError(w, http.StatusUnauthorized, "session_superseded")
				return
			}
		}

		ident := auth.Identity{
			ID:             uid,
			Email:          claims.Email,
			Role:           claims.Role,
			SessionVersion: claims.SessionVersion,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, ident)))
	})
}

func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			for _, role := range roles {
				if ident.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, "access_denied")
		})
	}
}
