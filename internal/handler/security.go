package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ministore/api/internal/domain/auth"
)

type identityKey struct{}

// identityFrom returns the authenticated API key for the request, if any.
func identityFrom(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(identityKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// apiKeyFromRequest extracts the raw key from the X-API-Key header or a
// Bearer token.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimPrefix(ah, "Bearer ")
	}
	return ""
}

// hashAPIKey computes the peppered HMAC-SHA256 of a raw key. Keys are stored
// only in this form, so a database leak does not expose usable credentials.
func (h *Handler) hashAPIKey(key string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// authenticate validates the request's API key and stores the resolved
// identity in the context. The stored hash is re-compared in constant time
// even after a successful lookup, guarding against timing side-channels if
// the repository ever returns a stale or wrong row.
func (h *Handler) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromRequest(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		sum := h.hashAPIKey(key)
		info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(sum))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope gates a handler behind a key scope.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := identityFrom(r.Context())
		if !ok || !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	}
}
