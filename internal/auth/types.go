// Package auth authenticates API callers with HS256 bearer tokens or
// bcrypt-hashed API keys and scopes every request to one tenant.
package auth

import (
	"errors"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// UserContextKey is the context key for caller information
	UserContextKey ContextKey = "user"
)

// Scopes for authorization
const (
	ScopeCampaignsRead    = "campaigns:read"
	ScopeCampaignsWrite   = "campaigns:write"
	ScopeCampaignsApprove = "campaigns:approve"
)

// AllScopes is granted to development callers and to keys without explicit scopes.
var AllScopes = []string{ScopeCampaignsRead, ScopeCampaignsWrite, ScopeCampaignsApprove}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrMissingScope       = errors.New("missing required scope")
)

// UserContext represents the authenticated context for a request
type UserContext struct {
	Subject   string   `json:"subject"`
	Tenant    string   `json:"tenant"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"` // "jwt", "api_key" or "dev"
}

// HasScope reports whether the caller holds scope.
func (u *UserContext) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// CanAccessTenant reports whether the caller may act for tenant. An empty
// caller tenant is an operator credential that spans tenants.
func (u *UserContext) CanAccessTenant(tenant string) bool {
	return u.Tenant == "" || u.Tenant == tenant
}

// APIKeyConfig is one configured API key, stored as a bcrypt hash.
type APIKeyConfig struct {
	Name   string   `mapstructure:"name"`
	Hash   string   `mapstructure:"hash"`
	Tenant string   `mapstructure:"tenant"`
	Scopes []string `mapstructure:"scopes"`
}

// Config configures request authentication.
type Config struct {
	Skip        bool           `mapstructure:"skip"`
	JWTSecret   string         `mapstructure:"jwt_secret"`
	Issuer      string         `mapstructure:"issuer"`
	TokenExpiry int            `mapstructure:"token_expiry"` // seconds
	APIKeys     []APIKeyConfig `mapstructure:"api_keys"`
}
