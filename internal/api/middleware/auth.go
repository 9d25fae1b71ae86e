package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sydlexius/camwatch/internal/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// OptionalAuth returns middleware that attaches the principal when the
// request carries a valid bearer token. It never rejects a request; a
// missing or invalid token leaves the caller anonymous.
func OptionalAuth(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" && v != nil {
				if p, err := v.Verify(r.Context(), token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that admits only admin principals:
// 403 without a token, 401 for an invalid token, 403 for a non-admin.
func RequireAdmin(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" || v == nil {
				writeError(w, http.StatusForbidden, "admin token required")
				return
			}
			p, err := v.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !p.Admin {
				writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal stores p in the context.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}

// IsAdmin reports whether the request context carries an admin principal.
func IsAdmin(ctx context.Context) bool {
	p := PrincipalFromContext(ctx)
	return p != nil && p.Admin
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
