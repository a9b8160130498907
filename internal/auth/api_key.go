package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// APIKeyHeader carries administrative API keys
const APIKeyHeader = "X-API-Key"

var ErrInvalidAPIKey = errors.New("invalid API key format")

// APIKeyManager generates and checks administrative API keys.
// Only SHA-256 hashes of keys are configured; plaintext keys are shown once.
type APIKeyManager struct {
	prefix string
	hashes [][]byte
}

// NewAPIKeyManager creates a manager accepting keys whose hex SHA-256 is in hashes
func NewAPIKeyManager(hashes []string) *APIKeyManager {
	m := &APIKeyManager{prefix: "bst_"}
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m.hashes = append(m.hashes, []byte(h))
		}
	}
	return m
}

// Enabled reports whether any key is configured
func (m *APIKeyManager) Enabled() bool {
	return len(m.hashes) > 0
}

// GenerateAPIKey returns a new key in the format bst_<64 hex chars> and its hash
func (m *APIKeyManager) GenerateAPIKey() (plainKey, hash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainKey = m.prefix + hex.EncodeToString(randomBytes)
	hash, err = m.HashAPIKey(plainKey)
	return plainKey, hash, err
}

// HashAPIKey validates the key format and returns its hex SHA-256
func (m *APIKeyManager) HashAPIKey(plainKey string) (string, error) {
	if !strings.HasPrefix(plainKey, m.prefix) || len(plainKey) != len(m.prefix)+64 {
		return "", ErrInvalidAPIKey
	}
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:]), nil
}

// Valid reports whether plainKey matches a configured hash. Every configured
// hash is compared so timing does not depend on which one matched.
func (m *APIKeyManager) Valid(plainKey string) bool {
	hash, err := m.HashAPIKey(plainKey)
	if err != nil {
		return false
	}

	match := 0
	for _, h := range m.hashes {
		match |= subtle.ConstantTimeCompare([]byte(hash), h)
	}
	return match == 1
}

// RequireAPIKey rejects requests without a configured administrative key
func RequireAPIKey(m *APIKeyManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Valid(r.Header.Get(APIKeyHeader)) {
				pkghttp.WriteUnauthorized(w, "Valid API key required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
