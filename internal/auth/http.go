package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"restaurantOrdering/models"
	"restaurantOrdering/repository"
)

// Middleware validates the Bearer JWT and injects the Principal into the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := ParseBearer(r.Header.Get("Authorization"), secret)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="orders"`)
				writeError(w, http.StatusUnauthorized, "auth error: "+err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin ensures the principal claims the admin role AND that the
// underlying user exists with role 'admin'. This prevents a stale or forged
// role claim from granting access.
func RequireAdmin(users repository.UserReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing principal")
				return
			}
			if p.Role != models.RoleAdmin {
				writeError(w, http.StatusForbidden, "only admin can perform this action")
				return
			}
			if users == nil {
				writeError(w, http.StatusInternalServerError, "users repository not configured")
				return
			}
			u, err := users.GetByUsername(r.Context(), p.Name)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "get user failed")
				return
			}
			if u == nil || strings.ToLower(strings.TrimSpace(u.Role)) != models.RoleAdmin {
				writeError(w, http.StatusForbidden, "only admin can perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
