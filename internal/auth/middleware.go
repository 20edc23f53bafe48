package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Middleware provides authentication middleware for HTTP
type Middleware struct {
	jwtManager *JWTManager
	apiKeys    *APIKeyStore
	skipAuth   bool // For development/testing
	logger     *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(cfg Config, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Middleware{
		apiKeys:  NewAPIKeyStore(cfg.APIKeys, logger),
		skipAuth: cfg.Skip,
		logger:   logger,
	}
	if cfg.JWTSecret != "" {
		m.jwtManager = NewJWTManager(cfg.JWTSecret, time.Duration(cfg.TokenExpiry)*time.Second, cfg.Issuer)
	}
	if cfg.Skip {
		logger.Warn("API authentication is disabled")
	}
	return m
}

// JWT returns the token manager, or nil when no secret is configured.
func (m *Middleware) JWT() *JWTManager { return m.jwtManager }

// HTTPMiddleware provides HTTP authentication middleware
func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, err := m.authenticate(r)
		if err != nil {
			m.logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (*UserContext, error) {
	if m.skipAuth {
		tenant := r.Header.Get("X-Tenant")
		return &UserContext{Subject: "dev", Tenant: tenant, Scopes: AllScopes, TokenType: "dev"}, nil
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if m.jwtManager == nil {
			return nil, fmt.Errorf("%w: bearer tokens are not enabled", ErrInvalidToken)
		}
		token, err := ExtractBearerToken(authHeader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return m.jwtManager.ValidateAccessToken(token)
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return m.apiKeys.ValidateAPIKey(apiKey)
	}

	// Browsers cannot set headers on websocket upgrades.
	if websocketUpgrade(r) {
		if key := r.URL.Query().Get("api_key"); key != "" {
			return m.apiKeys.ValidateAPIKey(key)
		}
		if token := r.URL.Query().Get("token"); token != "" && m.jwtManager != nil {
			return m.jwtManager.ValidateAccessToken(token)
		}
	}
	return nil, ErrMissingCredentials
}

func websocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

// WithUserContext attaches the caller to ctx.
func WithUserContext(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// GetUserContext extracts user context from context
func GetUserContext(ctx context.Context) (*UserContext, error) {
	userCtx, ok := ctx.Value(UserContextKey).(*UserContext)
	if !ok || userCtx == nil {
		return nil, ErrMissingCredentials
	}
	return userCtx, nil
}

// RequireScopes checks if the user has the required scopes
func RequireScopes(ctx context.Context, requiredScopes ...string) error {
	userCtx, err := GetUserContext(ctx)
	if err != nil {
		return err
	}
	for _, required := range requiredScopes {
		if !userCtx.HasScope(required) {
			return fmt.Errorf("%w: %s", ErrMissingScope, required)
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
