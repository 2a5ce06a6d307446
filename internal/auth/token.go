// Package auth keeps the admin session token and its expiry.
//
// The token is a JWT issued by the backend login endpoint. Its expiry is read
// from the unverified "exp" claim; the console never validates signatures,
// the backend does. Tokens without a readable expiry are kept for
// [DefaultExpiry].
//
// A [Store] is either purely in memory ([NewStore]) or mirrored to a YAML
// file ([NewFileStore]) so that CLI invocations share one login.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// DefaultExpiry applies to tokens whose expiry cannot be decoded.
const DefaultExpiry = 30 * time.Minute

// tokenFile is the on-disk representation of a saved session.
type tokenFile struct {
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// Store holds at most one token. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	path   string
	now    func() time.Time
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewFileStore returns a store persisted at path. An existing file is loaded;
// a missing one is not an error.
func NewFileStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("token file path is required")
	}

	s := &Store{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tf tokenFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tf.Token != "" && !tf.ExpiresAt.IsZero() {
		s.token = tf.Token
		s.expiry = tf.ExpiresAt
	}
	return s, nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Save stores token with the expiry decoded from its "exp" claim, or
// [DefaultExpiry] from now when the claim is missing or unreadable.
func (s *Store) Save(token string) error {
	if token == "" {
		return errors.New("token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := ExpiryOf(token)
	if !ok {
		expiry = s.now().Add(DefaultExpiry)
	}

	s.token = token
	s.expiry = expiry
	return s.persistLocked()
}

// Token returns the stored token, or "" when none is stored or it has
// expired. An expired token is cleared as a side effect.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return ""
	}
	if s.now().After(s.expiry) {
		s.token = ""
		s.expiry = time.Time{}
		_ = s.persistLocked()
		return ""
	}
	return s.token
}

// Clear removes the stored token.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expiry = time.Time{}
	return s.persistLocked()
}

// Expiry returns when the stored token expires, or the zero time.
func (s *Store) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// Remaining returns the time left before the stored token expires, truncated
// to whole seconds. It is never negative.
func (s *Store) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiry.IsZero() {
		return 0
	}
	left := s.expiry.Sub(s.now()).Truncate(time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// Valid reports whether a non-expired token is stored and its own "exp"
// claim lies in the future. Opaque tokens without a decodable expiry are
// never valid, even while [Store.Token] still returns them.
func (s *Store) Valid() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	expiry, ok := ExpiryOf(token)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return expiry.After(s.now())
}

// ExpiryOf decodes the "exp" claim of a JWT without verifying its signature.
func ExpiryOf(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// persistLocked mirrors the current state to disk. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	if s.token == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(tokenFile{Token: s.token, ExpiresAt: s.expiry.UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
