//go:build unix

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFile)
	holder, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, acquireLock(holder, time.Second))

	other, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer other.Close()

	assert.ErrorIs(t, acquireLock(other, 100*time.Millisecond), ErrLockTimeout)

	releaseLock(holder)
	assert.NoError(t, acquireLock(other, time.Second))
	releaseLock(other)
}
