// Package copilot – keyring.go keeps secrets in the OS keyring (Secret
// Service on Linux, Keychain on macOS, Credential Manager on Windows), keyed
// by the environment variable the secret would otherwise come from.
//
// A secret is taken from, in order: the environment, .env files, the config
// file, then the keyring.
package copilot

import (
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "bloodeclipse"
	keyringProbe   = "__bloodeclipse_probe__"
)

// StoreKeyring saves a secret under its variable name.
func StoreKeyring(name, value string) error {
	return keyring.Set(keyringService, name, value)
}

// GetKeyring returns the stored secret, or "" when there is none or the
// keyring cannot be reached.
func GetKeyring(name string) string {
	v, err := keyring.Get(keyringService, name)
	if err != nil {
		return ""
	}
	return v
}

// DeleteKeyring removes a stored secret. Removing a missing secret is not
// an error.
func DeleteKeyring(name string) error {
	if err := keyring.Delete(keyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// KeyringAvailable reports whether secrets can be written, by storing and
// removing a probe entry. Headless servers usually have no keyring.
func KeyringAvailable() bool {
	if err := keyring.Set(keyringService, keyringProbe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, keyringProbe)
	return true
}

// ResolveSecrets fills the secrets still empty after LoadConfig from the
// keyring and returns the names it filled.
func ResolveSecrets(cfg *Config, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	var filled []string
	for _, b := range envBindings {
		if !b.secret || b.get(cfg) != "" {
			continue
		}
		if v := GetKeyring(b.name); v != "" {
			b.set(cfg, v)
			filled = append(filled, b.name)
			logger.Debug("secret read from OS keyring", "name", b.name)
		}
	}
	return filled
}
