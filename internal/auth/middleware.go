package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey struct{}

// FromContext returns the claims attached by RequireAuth, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

func denyJSON(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// RequireAuth rejects requests without a valid bearer token and
// attaches the claims to the request context.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			denyJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := m.Parse(token)
		if err != nil {
			denyJSON(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
	})
}

// RequireRole gates a route group to the given roles. It must run
// inside RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := FromContext(r.Context())
			if claims == nil {
				denyJSON(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if !allowed[claims.Role] {
				denyJSON(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireWriter rejects viewers. Managers and admins pass.
func RequireWriter(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin, RoleManager)(next)
}

// RequireAdmin gates automation management to admins.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin)(next)
}
