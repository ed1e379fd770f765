package mcp

import (
	"net/http"
	"strings"
)

// AuthMiddleware protects the standalone MCP endpoint with a static API
// key, accepted either as a Bearer token or a bare Authorization value.
// An empty key disables the check; the gateway mount uses the shared
// keyring middleware instead.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token != apiKey {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
