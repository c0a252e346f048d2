// Package cache stores backend responses for the cached transport.
// Entries expire after a fixed TTL; the cache can be persisted to disk so the
// CLI keeps its responses between invocations.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Directory and file names.
const (
	DirName     = "biketag"
	EntriesFile = "responses.json"
	MetaFile    = "meta.json"
	LockFile    = ".lock"
	DefaultTTL  = 15 * time.Minute

	// LockTimeout is the maximum time Save waits for another process.
	LockTimeout       = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned by Save when another process holds the cache lock.
var ErrLockTimeout = errors.New("response cache locked by another process")

// Entry is one cached response.
type Entry struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// Meta is the meta.json structure.
type Meta struct {
	Version    string    `json:"version"`
	LastSave   time.Time `json:"last_save"`
	TTLSeconds int       `json:"ttl_seconds"`
	EntryCount int       `json:"entry_count"`
}

// Cache is a TTL response cache keyed by request identity (method + URL).
type Cache struct {
	dir     string
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// ResolveDir returns the default on-disk location, under the user cache dir.
func ResolveDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("get user cache dir: %w", err)
	}
	return filepath.Join(base, DirName), nil
}

// New creates an empty cache. dir may be empty for a memory-only cache.
// A non-positive ttl selects DefaultTTL.
func New(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		dir:     dir,
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns a fresh entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return Entry{}, false
	}
	return e, true
}

// Put stores an entry, stamping it with the current time.
func (c *Cache) Put(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.StoredAt = c.now()
	c.entries[key] = e
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Sub(e.StoredAt) > c.ttl
}

// Load reads the cache from disk. Expired entries are dropped.
// Returns nil if the cache doesn't exist (normal case).
// Returns error if the cache exists but is corrupt (caller should Clear and Save).
func (c *Cache) Load() error {
	if c.dir == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(c.dir, EntriesFile)) //nolint:gosec // Cache path from ResolveDir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read response cache: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("corrupt response cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range entries {
		if !c.expired(e) {
			c.entries[k] = e
		}
	}
	return nil
}

// Save writes the cache to disk. Thread-safe.
// Concurrent processes are serialized through an flock on LockFile, and each
// file is replaced atomically so a reader never sees a partial write.
func (c *Cache) Save() error {
	if c.dir == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	lock, err := os.OpenFile(filepath.Join(c.dir, LockFile), os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // Cache path from ResolveDir
	if err != nil {
		return fmt.Errorf("open cache lock: %w", err)
	}
	defer lock.Close()
	if err := acquireLock(lock, LockTimeout); err != nil {
		return err
	}
	defer releaseLock(lock)

	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	if err := writeAtomic(c.dir, EntriesFile, data); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}

	meta, err := json.MarshalIndent(Meta{
		Version:    "1",
		LastSave:   c.now(),
		TTLSeconds: int(c.ttl.Seconds()),
		EntryCount: len(c.entries),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := writeAtomic(c.dir, MetaFile, meta); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	return nil
}

// writeAtomic writes data to a temp file in dir, then renames it over name.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return err
	}
	return nil
}
