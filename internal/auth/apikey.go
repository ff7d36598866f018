// Package auth provides authentication middleware for API key and JWT-based access.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the HTTP header carrying an API key
	APIKeyHeader = "X-API-Key"

	// principalContextKey is the context key for storing the caller identity
	principalContextKey contextKey = "principal"
)

// Principal identifies an authenticated caller.
type Principal struct {
	// Subject is the JWT subject, or the API key itself for key auth.
	Subject string

	// Method records how the caller authenticated: "api_key", "jwt", or
	// "none" when authentication is disabled.
	Method string
}

// Authenticator validates API keys and JWT bearer tokens on incoming HTTP
// requests. With no keys configured, authentication is disabled — the
// development default, matching the server's open CORS behavior.
type Authenticator struct {
	keys       map[string]bool
	jwtManager *JWTManager
	skipPaths  map[string]bool
}

// NewAuthenticator creates an authenticator for the given API keys.
func NewAuthenticator(apiKeys []string, jwtManager *JWTManager) *Authenticator {
	keys := make(map[string]bool, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			keys[k] = true
		}
	}
	return &Authenticator{
		keys:       keys,
		jwtManager: jwtManager,
		skipPaths: map[string]bool{
			// Health checks and token minting authenticate differently
			"/healthz":  true,
			"/readyz":   true,
			"/v1/token": true,
		},
	}
}

// WithSkipPaths adds paths that bypass authentication
func (a *Authenticator) WithSkipPaths(paths ...string) *Authenticator {
	for _, p := range paths {
		a.skipPaths[p] = true
	}
	return a
}

// Enabled reports whether any API keys are configured.
func (a *Authenticator) Enabled() bool {
	return len(a.keys) > 0
}

// ValidateAPIKey reports whether the given key is one of the configured keys.
func (a *Authenticator) ValidateAPIKey(key string) bool {
	return a.keys[strings.TrimSpace(key)]
}

// Middleware validates the request's API key or bearer token and stores the
// resulting Principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] || !a.Enabled() {
			ctx := context.WithValue(r.Context(), principalContextKey, &Principal{Method: "none"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if key := r.Header.Get(APIKeyHeader); key != "" {
			if !a.ValidateAPIKey(key) {
				writeUnauthorized(w, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey, &Principal{Subject: key, Method: "api_key"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			claims, err := a.jwtManager.ValidateToken(token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey, &Principal{Subject: claims.Subject, Method: "jwt"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		writeUnauthorized(w, "missing credentials")
	})
}

// PrincipalFromContext extracts the caller identity from context
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
