package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyStore checks X-API-Key values against configured bcrypt hashes.
// bcrypt is slow, so accepted keys are remembered by SHA256 digest.
type APIKeyStore struct {
	keys   []APIKeyConfig
	logger *zap.Logger

	mu       sync.RWMutex
	verified map[string]int // sha256(key) -> index into keys
}

// NewAPIKeyStore skips entries whose hash is not a bcrypt hash.
func NewAPIKeyStore(keys []APIKeyConfig, logger *zap.Logger) *APIKeyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	valid := make([]APIKeyConfig, 0, len(keys))
	for _, k := range keys {
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			logger.Warn("Ignoring API key with invalid bcrypt hash", zap.String("name", k.Name), zap.Error(err))
			continue
		}
		valid = append(valid, k)
	}
	return &APIKeyStore{keys: valid, logger: logger, verified: make(map[string]int)}
}

// Len returns the number of usable keys.
func (s *APIKeyStore) Len() int { return len(s.keys) }

// ValidateAPIKey returns the caller context for key.
func (s *APIKeyStore) ValidateAPIKey(key string) (*UserContext, error) {
	if key == "" {
		return nil, ErrMissingCredentials
	}
	digest := hashToken(key)

	s.mu.RLock()
	idx, ok := s.verified[digest]
	s.mu.RUnlock()
	if ok {
		return s.userContext(idx), nil
	}

	for i, k := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(key)) == nil {
			s.mu.Lock()
			s.verified[digest] = i
			s.mu.Unlock()
			return s.userContext(i), nil
		}
	}
	return nil, ErrInvalidAPIKey
}

func (s *APIKeyStore) userContext(i int) *UserContext {
	k := s.keys[i]
	scopes := k.Scopes
	if len(scopes) == 0 {
		scopes = AllScopes
	}
	return &UserContext{
		Subject:   "api_key:" + k.Name,
		Tenant:    k.Tenant,
		Scopes:    append([]string(nil), scopes...),
		TokenType: "api_key",
	}
}

// HashAPIKey returns the bcrypt hash to put in configuration for key.
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// hashToken creates a SHA256 hash of a token
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
