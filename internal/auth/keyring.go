// Package auth stores backend secrets in the OS keyring.
// Secrets never live in the YAML config; they are loaded from here or from
// environment variables at startup.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Keyring service name for biketag credentials.
const (
	ServiceName = "biketag"
)

// Errors for keyring operations.
var (
	ErrNoCredential    = errors.New("no credential found")
	ErrKeyringNotAvail = errors.New("keyring not available")
)

// SecretKey addresses one secret field of one backend, e.g. {"imgur", "client_secret"}.
type SecretKey struct {
	Backend string
	Field   string
}

// String returns the keyring user for the secret.
// Format: "<backend>:<field>".
func (k SecretKey) String() string {
	return k.Backend + ":" + k.Field
}

// StoreSecret stores a secret value in the OS keyring.
func StoreSecret(key SecretKey, value string) error {
	if err := keyring.Set(ServiceName, key.String(), value); err != nil {
		// Check if keyring is not available (e.g., headless environment)
		if isKeyringUnavailable(err) {
			return fmt.Errorf("%w: %w", ErrKeyringNotAvail, err)
		}
		return fmt.Errorf("store secret %s: %w", key, err)
	}
	return nil
}

// LoadSecret retrieves a secret from the OS keyring.
// Returns ErrNoCredential if nothing is stored under key.
func LoadSecret(key SecretKey) (string, error) {
	value, err := keyring.Get(ServiceName, key.String())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoCredential
		}
		if isKeyringUnavailable(err) {
			return "", fmt.Errorf("%w: %w", ErrKeyringNotAvail, err)
		}
		return "", fmt.Errorf("load secret %s: %w", key, err)
	}
	return value, nil
}

// DeleteSecret removes a secret from the OS keyring.
// Returns nil if nothing was stored (idempotent).
func DeleteSecret(key SecretKey) error {
	err := keyring.Delete(ServiceName, key.String())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		if isKeyringUnavailable(err) {
			return fmt.Errorf("%w: %w", ErrKeyringNotAvail, err)
		}
		return fmt.Errorf("delete secret %s: %w", key, err)
	}
	return nil
}

// isKeyringUnavailable checks if the error indicates the keyring is not available.
// This happens in headless environments (CI, containers, SSH sessions).
func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return false
	}
	errStr := err.Error()
	// Linux: dbus errors
	// macOS: keychain unavailable
	// Windows: credential manager errors
	return strings.Contains(errStr, "dbus") ||
		strings.Contains(errStr, "keychain") ||
		strings.Contains(errStr, "credential") ||
		strings.Contains(errStr, "secret service")
}

// IsKeyringAvailable checks if the OS keyring is available.
func IsKeyringAvailable() bool {
	_, err := keyring.Get(ServiceName, "__probe__")
	if err == nil {
		//nolint:errcheck // Best effort cleanup, we already confirmed keyring works
		keyring.Delete(ServiceName, "__probe__")
		return true
	}
	// ErrNotFound means keyring is available but key doesn't exist
	return errors.Is(err, keyring.ErrNotFound)
}

// IsHeadless detects if we're running in a headless environment.
// Returns true if running in CI, container, or SSH session without display.
func IsHeadless() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"BUILDKITE",
		"CIRCLECI",
	}
	for _, env := range ciEnvVars {
		if os.Getenv(env) != "" {
			return true
		}
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return os.Getenv("SSH_TTY") != "" && os.Getenv("DISPLAY") == ""
}
