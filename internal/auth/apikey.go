// Package auth verifies the API keys sent in the X-API-KEY header.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"topictree/internal/rbac"
)

const HeaderAPIKey = "X-API-KEY"

var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
)

// Keyring holds the configured keys. The writer key may be given in plain
// text or as a bcrypt hash; keys that verified once are remembered by their
// SHA-256 so bcrypt runs once per distinct key.
type Keyring struct {
	writerKey  string
	writerHash []byte
	readerKey  string

	mu       sync.RWMutex
	verified map[string]rbac.Role
}

func NewKeyring(writerKey, writerHash, readerKey string) *Keyring {
	k := &Keyring{
		writerKey: strings.TrimSpace(writerKey),
		readerKey: strings.TrimSpace(readerKey),
		verified:  make(map[string]rbac.Role),
	}
	if hash := strings.TrimSpace(writerHash); hash != "" {
		k.writerHash = []byte(hash)
	}
	return k
}

// Enabled reports whether any key is configured. A disabled keyring grants
// writer access to every request.
func (k *Keyring) Enabled() bool {
	return k.writerKey != "" || len(k.writerHash) > 0 || k.readerKey != ""
}

func (k *Keyring) Authenticate(key string) (rbac.Role, error) {
	if !k.Enabled() {
		return rbac.RoleWriter, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingKey
	}

	digest := HashToken(key)
	k.mu.RLock()
	role, ok := k.verified[digest]
	k.mu.RUnlock()
	if ok {
		return role, nil
	}

	switch {
	case k.writerKey != "" && equal(key, k.writerKey):
		role = rbac.RoleWriter
	case len(k.writerHash) > 0 && bcrypt.CompareHashAndPassword(k.writerHash, []byte(key)) == nil:
		role = rbac.RoleWriter
	case k.readerKey != "" && equal(key, k.readerKey):
		role = rbac.RoleReader
	default:
		return "", ErrInvalidKey
	}

	k.mu.Lock()
	k.verified[digest] = role
	k.mu.Unlock()
	return role, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashKey returns the bcrypt hash to configure as TOPICTREE_API_KEY_HASH.
func HashKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

type roleKey struct{}

func WithRole(ctx context.Context, role rbac.Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFrom returns the role stored by WithRole, or reader when absent.
func RoleFrom(ctx context.Context) rbac.Role {
	if role, ok := ctx.Value(roleKey{}).(rbac.Role); ok {
		return role
	}
	return rbac.RoleReader
}
