package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSecretKey_String(t *testing.T) {
	assert.Equal(t, "imgur:client_secret", SecretKey{Backend: "imgur", Field: "client_secret"}.String())
}

func TestSecretRoundTrip(t *testing.T) {
	keyring.MockInit()

	key := SecretKey{Backend: "reddit", Field: "password"}

	_, err := LoadSecret(key)
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, StoreSecret(key, "hunter2"))

	got, err := LoadSecret(key)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	require.NoError(t, DeleteSecret(key))
	_, err = LoadSecret(key)
	require.ErrorIs(t, err, ErrNoCredential)

	// Deleting twice is fine.
	require.NoError(t, DeleteSecret(key))
}

func TestSecretsAreIsolatedPerBackend(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, StoreSecret(SecretKey{"imgur", "client_secret"}, "a"))
	require.NoError(t, StoreSecret(SecretKey{"reddit", "client_secret"}, "b"))

	a, err := LoadSecret(SecretKey{"imgur", "client_secret"})
	require.NoError(t, err)
	b, err := LoadSecret(SecretKey{"reddit", "client_secret"})
	require.NoError(t, err)

	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: session bus not found"))
	t.Cleanup(keyring.MockInit)

	err := StoreSecret(SecretKey{"twitter", "bearer_token"}, "x")
	require.ErrorIs(t, err, ErrKeyringNotAvail)

	_, err = LoadSecret(SecretKey{"twitter", "bearer_token"})
	require.ErrorIs(t, err, ErrKeyringNotAvail)

	assert.False(t, IsKeyringAvailable())
}

func TestIsKeyringUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: keyring.ErrNotFound, want: false},
		{name: "dbus", err: errors.New("failed to open dbus connection"), want: true},
		{name: "keychain", err: errors.New("keychain locked"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isKeyringUnavailable(tt.err))
		})
	}
}

func TestIsHeadless_CI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, IsHeadless())
}
