package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/smallplates/collect/internal/auth"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireVisitorSession wires the session token from either the
// Authorization header or the session_token query parameter into the
// request context. The query fallback exists for links opened from emails.
func RequireVisitorSession(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := r.URL.Query().Get("session_token")
			if tok == "" {
				if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
					tok = strings.TrimPrefix(authz, "Bearer ")
				}
			}
			if tok == "" {
				http.Error(w, "session_token is required", http.StatusUnauthorized)
				return
			}
			claims, err := auth.Parse(tok, secret)
			if err != nil || claims.Role != "contributor" {
				http.Error(w, "invalid session_token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	if v := r.Context().Value(CtxClaims); v != nil {
		if c, ok := v.(*auth.Claims); ok {
			return c
		}
	}
	return nil
}
