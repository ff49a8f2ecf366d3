package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/trademart/server/internal/auth"
	"github.com/trademart/server/internal/model"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionMiddleware validates the Bearer session token and attaches the
// session info to the request context.
func SessionMiddleware(sessions *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token := strings.TrimSpace(parts[1])
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			info, err := sessions.Validate(r.Context(), token)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose session does not carry the role.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := GetSession(r.Context())
			if !ok || info.Role != role {
				respondWithError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSession returns the session info attached by SessionMiddleware.
func GetSession(ctx context.Context) (*model.SessionInfo, bool) {
	info, ok := ctx.Value(sessionKey).(*model.SessionInfo)
	return info, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
