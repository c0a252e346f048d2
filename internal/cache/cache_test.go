package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source for expiry tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(dir string) (*Cache, *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New(dir, 15*time.Minute)
	c.now = clk.now
	return c, clk
}

func TestCache_GetPut(t *testing.T) {
	c, _ := newTestCache("")

	_, ok := c.Get("GET https://api.imgur.com/3/album/abc/images")
	assert.False(t, ok)

	c.Put("GET https://api.imgur.com/3/album/abc/images", Entry{Status: 200, Body: []byte(`{"data":[]}`)})

	e, ok := c.Get("GET https://api.imgur.com/3/album/abc/images")
	require.True(t, ok)
	assert.Equal(t, 200, e.Status)
	assert.JSONEq(t, `{"data":[]}`, string(e.Body))
}

func TestCache_Expiry(t *testing.T) {
	c, clk := newTestCache("")
	c.Put("k", Entry{Status: 200})

	clk.t = clk.t.Add(14 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry within TTL")

	clk.t = clk.t.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry past TTL")

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 0, c.Len())
}

func TestCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New("", 0).TTL())
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache("")
	c.Put("a", Entry{})
	c.Put("b", Entry{})

	c.Delete("a")
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Save_Load(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	c, clk := newTestCache(dir)
	c.Put("fresh", Entry{Status: 200, Body: []byte("one")})
	clk.t = clk.t.Add(20 * time.Minute)
	c.Put("newer", Entry{Status: 200, Body: []byte("two")})

	require.NoError(t, c.Save())
	assert.FileExists(t, filepath.Join(dir, EntriesFile))
	assert.FileExists(t, filepath.Join(dir, MetaFile))

	c2, clk2 := newTestCache(dir)
	clk2.t = clk.t
	require.NoError(t, c2.Load())

	// "fresh" is 20 minutes old by now and is dropped on load.
	assert.Equal(t, 1, c2.Len())
	e, ok := c2.Get("newer")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), e.Body)
}

func TestCache_Save_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestCache(dir)
	c.Put("k", Entry{Status: 200})

	require.NoError(t, c.Save())
	require.NoError(t, c.Save())

	tmp, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp)

	info, err := os.Stat(filepath.Join(dir, EntriesFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCache_ConcurrentSaves(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c, _ := newTestCache(dir)
			c.Put("k", Entry{Status: 200 + n})
			assert.NoError(t, c.Save())
		}(i)
	}
	wg.Wait()

	c, _ := newTestCache(dir)
	require.NoError(t, c.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Load_Missing(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope"), 0)
	assert.NoError(t, c.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCache_Load_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, EntriesFile), []byte("{invalid"), 0o600))

	err := New(dir, 0).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt response cache")
}

func TestCache_MemoryOnlySaveIsNoop(t *testing.T) {
	c := New("", 0)
	c.Put("k", Entry{})
	assert.NoError(t, c.Save())
	assert.NoError(t, c.Load())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New("", 0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Put(string(rune('a'+i%26)), Entry{Status: 200})
		}()
		go func() {
			defer wg.Done()
			c.Get(string(rune('a' + i%26)))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 26)
}
