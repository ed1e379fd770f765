package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brainstem-ai/brainstem/internal/config"
	"github.com/brainstem-ai/brainstem/internal/port/cache"
)

type callerCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/.well-known/node.json":  true,
}

// cacheTTL bounds how long a verified key skips the bcrypt comparison.
const cacheTTL = 5 * time.Minute

// Keyring resolves presented API key secrets to caller identities.
// Verification is bcrypt against the configured hashes; successful
// verifications are cached by secret digest so the comparison cost is
// paid once per key, not per request.
type Keyring struct {
	keys  []config.APIKey
	cache cache.Cache // optional
}

// NewKeyring builds a keyring over the configured API keys. c may be
// nil to disable verification caching.
func NewKeyring(keys []config.APIKey, c cache.Cache) *Keyring {
	return &Keyring{keys: keys, cache: c}
}

// Resolve returns the caller identity for a presented secret, or false
// when no configured key matches.
func (k *Keyring) Resolve(ctx context.Context, secret string) (string, bool) {
	if secret == "" {
		return "", false
	}

	digest := sha256.Sum256([]byte(secret))
	cacheKey := "apikey:" + hex.EncodeToString(digest[:])
	if k.cache != nil {
		if data, ok, err := k.cache.Get(ctx, cacheKey); err == nil && ok {
			return string(data), true
		}
	}

	for _, key := range k.keys {
		if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)) == nil {
			if k.cache != nil {
				_ = k.cache.Set(ctx, cacheKey, []byte(key.Caller), cacheTTL)
			}
			return key.Caller, true
		}
	}
	return "", false
}

// HashKey returns the bcrypt hash of a new API key secret, for the
// admin CLI and provisioning tooling.
func HashKey(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Auth returns middleware that resolves the caller identity from an
// API key. With no keys configured, auth is disabled and every request
// runs as defaultCaller. The key is taken from X-API-Key or from
// Authorization: Bearer; WebSocket upgrades may pass ?token= instead
// since browsers cannot set headers on the upgrade request.
func Auth(keyring *Keyring, defaultCaller string) func(http.Handler) http.Handler {
	enabled := keyring != nil && len(keyring.keys) > 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), defaultCaller)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			secret := r.Header.Get("X-API-Key")
			if secret == "" {
				if auth := r.Header.Get("Authorization"); auth != "" {
					token := strings.TrimPrefix(auth, "Bearer ")
					if token == auth {
						http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
						return
					}
					secret = token
				}
			}
			if secret == "" && r.URL.Path == "/ws" {
				secret = r.URL.Query().Get("token")
			}
			if secret == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			caller, ok := keyring.Resolve(r.Context(), secret)
			if !ok {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller stores the caller identity on the context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, caller)
}

// CallerFromContext returns the authenticated caller identity, or ""
// when the request is unauthenticated.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerCtxKey{}).(string)
	return caller
}
