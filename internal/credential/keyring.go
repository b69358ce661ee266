// Package credential persists the bearer token and cached role name in
// the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "malharro"

// Keys under which the session is stored.
const (
	KeyToken = "jwt"
	KeyRole  = "userRole"
)

// ErrNoCredentials is returned by Load when no token has been saved.
var ErrNoCredentials = errors.New("no saved credentials")

// Store reads and writes credentials in a keyring.
type Store struct {
	ring keyring.Keyring
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a Store backed by the system keyring, falling back to an
// encrypted file under dir when no OS keyring is available.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("malharro-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. A missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Save stores the token and role name of a signed-in user.
func (s *Store) Save(token, role string) error {
	if err := s.Set(KeyToken, token); err != nil {
		return err
	}
	return s.Set(KeyRole, role)
}

// Load returns the saved token and role name. The role may be empty.
func (s *Store) Load() (token, role string, err error) {
	token, err = s.Get(KeyToken)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", "", ErrNoCredentials
	}
	if err != nil {
		return "", "", err
	}
	role, err = s.Get(KeyRole)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return "", "", err
	}
	return token, role, nil
}

// Clear removes the saved session.
func (s *Store) Clear() error {
	if err := s.Delete(KeyToken); err != nil {
		return err
	}
	return s.Delete(KeyRole)
}
