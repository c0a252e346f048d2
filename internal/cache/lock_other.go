//go:build !unix

package cache

import (
	"os"
	"time"
)

// acquireLock is a no-op where flock is unavailable.
func acquireLock(_ *os.File, _ time.Duration) error {
	return nil
}

func releaseLock(_ *os.File) {}
