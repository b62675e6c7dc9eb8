package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "obranotify"
	tokenKey    = "session-token"
)

// Open returns the system keyring configured for obranotify, falling back
// to an encrypted file under configDir when no OS backend is available.
func Open(configDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("obranotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Vault stores the session token of the logged-in user.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an opened keyring. Tests pass keyring.NewArrayKeyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// SaveToken stores the session token.
func (v *Vault) SaveToken(token string) error {
	err := v.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  []byte(token),
		Label: "obranotify session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}

// Token returns the stored session token, or ErrNoSession when none is
// stored.
func (v *Vault) Token() (string, error) {
	item, err := v.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoSession
	}
	return string(item.Data), nil
}

// DeleteToken removes the stored session token. Removing an absent token
// is not an error.
func (v *Vault) DeleteToken() error {
	err := v.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey, err)
	}
	return nil
}
