package httputil

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminKeyHeader carries the moderation API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware creates middleware that checks the moderation key
// against a bcrypt hash from configuration. An empty hash disables the
// protected routes entirely.
func AdminKeyMiddleware(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				Error(w, http.StatusNotFound, "not found")
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				Error(w, http.StatusUnauthorized, "missing admin key")
				return
			}

			if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				Error(w, http.StatusForbidden, "invalid admin key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
