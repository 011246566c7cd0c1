// Package auth holds the API-key identity model. Each key belongs to one
// storefront user; cart and order ownership hang off that user ID.
package auth

import "context"

// ScopeAdmin grants access to the /api/admin surface.
const ScopeAdmin = "admin"

// APIKeyInfo is a validated API key row.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of active API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
