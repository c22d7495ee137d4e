package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bimbel/storagegw/internal/auth"
	"github.com/bimbel/storagegw/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// UserIDKey is the context key for the authenticated user's ID.
const UserIDKey contextKey = "userID"

// UserRoleKey is the context key for the authenticated user's role.
const UserRoleKey contextKey = "userRole"

// RequireAuth returns middleware that validates a Bearer JWT and injects
// user claims into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := auth.Parse(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated subject, or "" outside RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// UserRole returns the role claim of the authenticated subject.
func UserRole(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
