// Package auth guards the report API with static API keys.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// Context key type for avoiding collisions
type contextKey string

const keyIDContextKey contextKey = "apiKeyID"

// Keys is the set of accepted API keys. Only their digests are held.
type Keys struct {
	digests [][sha256.Size]byte
}

// NewKeys builds a key set; blank entries are ignored
func NewKeys(keys ...string) *Keys {
	k := &Keys{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		k.digests = append(k.digests, sha256.Sum256([]byte(key)))
	}
	return k
}

// Enabled reports whether any key is configured. Without keys the API is open.
func (k *Keys) Enabled() bool {
	return k != nil && len(k.digests) > 0
}

// Match returns the id of key, or false if key is not accepted. The id is a
// digest prefix, safe to log.
func (k *Keys) Match(key string) (string, bool) {
	if !k.Enabled() || key == "" {
		return "", false
	}
	digest := sha256.Sum256([]byte(key))
	found := 0
	for _, d := range k.digests {
		found |= subtle.ConstantTimeCompare(digest[:], d[:])
	}
	if found != 1 {
		return "", false
	}
	return hex.EncodeToString(digest[:4]), true
}

// KeyFromRequest reads X-API-Key, falling back to a bearer token
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return ""
}

// GetKeyIDFromContext returns the id of the key that authenticated the request
func GetKeyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(keyIDContextKey).(string); ok {
		return id
	}
	return ""
}

// Middleware returns an HTTP middleware that requires a valid API key when
// keys are configured.
func Middleware(keys *Keys, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !keys.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := KeyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			id, ok := keys.Match(apiKey)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), keyIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
