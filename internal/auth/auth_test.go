package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func bcryptHash(t *testing.T, key string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "")
	token, err := m.GenerateAccessToken("alice", "Acme", []string{ScopeCampaignsWrite})
	require.NoError(t, err)

	u, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Subject)
	assert.Equal(t, "Acme", u.Tenant)
	assert.True(t, u.HasScope(ScopeCampaignsWrite))
	assert.False(t, u.HasScope(ScopeCampaignsApprove))
	assert.Equal(t, "jwt", u.TokenType)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "")

	t.Run("wrong key", func(t *testing.T) {
		token, err := NewJWTManager("other", time.Hour, "").GenerateAccessToken("alice", "Acme", nil)
		require.NoError(t, err)
		_, err = m.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewJWTManager("secret", time.Hour, "someone-else").GenerateAccessToken("alice", "Acme", nil)
		require.NoError(t, err)
		_, err = m.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    defaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = m.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no scopes defaults to read", func(t *testing.T) {
		token, err := m.GenerateAccessToken("bob", "Acme", nil)
		require.NoError(t, err)
		u, err := m.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, []string{ScopeCampaignsRead}, u.Scopes)
	})
}

func TestAPIKeyStore(t *testing.T) {
	store := NewAPIKeyStore([]APIKeyConfig{
		{Name: "ops", Hash: bcryptHash(t, "sk_ops"), Tenant: ""},
		{Name: "acme", Hash: bcryptHash(t, "sk_acme"), Tenant: "Acme", Scopes: []string{ScopeCampaignsRead}},
		{Name: "broken", Hash: "plaintext"},
	}, zaptest.NewLogger(t))
	assert.Equal(t, 2, store.Len())

	u, err := store.ValidateAPIKey("sk_acme")
	require.NoError(t, err)
	assert.Equal(t, "api_key:acme", u.Subject)
	assert.True(t, u.CanAccessTenant("Acme"))
	assert.False(t, u.CanAccessTenant("Globex"))

	// served from the digest cache the second time
	again, err := store.ValidateAPIKey("sk_acme")
	require.NoError(t, err)
	assert.Equal(t, u, again)

	ops, err := store.ValidateAPIKey("sk_ops")
	require.NoError(t, err)
	assert.Equal(t, AllScopes, ops.Scopes)
	assert.True(t, ops.CanAccessTenant("Globex"))

	_, err = store.ValidateAPIKey("plaintext")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	_, err = store.ValidateAPIKey("")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestHTTPMiddleware(t *testing.T) {
	mw := NewMiddleware(Config{
		JWTSecret: "secret",
		APIKeys:   []APIKeyConfig{{Name: "acme", Hash: bcryptHash(t, "sk_acme"), Tenant: "Acme"}},
	}, zaptest.NewLogger(t))

	handler := mw.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := GetUserContext(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(u.Subject + "@" + u.Tenant))
	}))

	token, err := mw.JWT().GenerateAccessToken("alice", "Acme", AllScopes)
	require.NoError(t, err)

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "alice@Acme"},
		{"api key", func(r *http.Request) { r.Header.Set("X-API-Key", "sk_acme") }, http.StatusOK, "api_key:acme@Acme"},
		{"bad key", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized, ""},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized, ""},
		{"nothing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"websocket query key", func(r *http.Request) {
			r.Header.Set("Upgrade", "websocket")
			q := r.URL.Query()
			q.Set("api_key", "sk_acme")
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK, "api_key:acme@Acme"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/campaigns/1", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestSkipAuthUsesTenantHeader(t *testing.T) {
	mw := NewMiddleware(Config{Skip: true}, zaptest.NewLogger(t))
	var got *UserContext
	handler := mw.HTTPMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = GetUserContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant", "Acme")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Tenant)
	assert.NoError(t, RequireScopes(WithUserContext(req.Context(), got), ScopeCampaignsApprove))
}

func TestHashAPIKey(t *testing.T) {
	h, err := HashAPIKey("sk_new")
	require.NoError(t, err)
	store := NewAPIKeyStore([]APIKeyConfig{{Name: "new", Hash: h}}, nil)
	_, err = store.ValidateAPIKey("sk_new")
	assert.NoError(t, err)
}
