package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"listkeep/internal/auth"
	"listkeep/internal/ratelimit"
)

type contextKey int

const userIDKey contextKey = iota

// SessionAuth resolves the bearer token to a user and stores the user ID on
// the request context. Requests without a valid session get a 401.
func SessionAuth(mgr *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := mgr.Authenticate(bearerToken(r))
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing session token")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit throttles requests per authenticated user. A nil limiter allows
// everything.
func RateLimit(limiter *ratelimit.KeyLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(userID(r), time.Now()) {
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return ""
	}
	return authz[len(prefix):]
}

// userID returns the authenticated user's ID stored by SessionAuth.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
