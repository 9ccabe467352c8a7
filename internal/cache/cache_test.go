package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("a", "value-a")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheBoundNeverExceedsCapacity(t *testing.T) {
	c := New(3, time.Minute)
	for i := 0; i < 10; i++ {
		c.Put(string(rune('a'+i)), i)
		assert.LessOrEqual(t, c.Stats().Size, 3)
	}
	assert.Equal(t, 3, c.Stats().Size)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	// touch "a" so "b" becomes the LRU victim
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as LRU")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLExpiryIsAMiss(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	c.Put("a", "value-a")
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestPutRefreshesLRUNotTTL(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	c.Put("a", "v1")
	time.Sleep(15 * time.Millisecond)
	c.Put("a", "v2") // replace: LRU refreshed, TTL clock NOT reset

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", v, "replacing Put should update the value")

	time.Sleep(15 * time.Millisecond) // total age since original insert > ttl
	_, ok = c.Get("a")
	assert.False(t, ok, "TTL must continue from original insertion, not the refresh")
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("find_duplicates:a", 1)
	c.Put("find_duplicates:b", 2)
	c.Put("run_structural:a", 3)

	removed := c.InvalidatePrefix("find_duplicates:")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("run_structural:a")
	assert.True(t, ok)
	_, ok = c.Get("find_duplicates:a")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("a", 1)

	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestFingerprintKeyDeterministic(t *testing.T) {
	opts1 := map[string]any{"min_lines": 5, "min_similarity": 0.8}
	opts2 := map[string]any{"min_similarity": 0.8, "min_lines": 5}

	k1 := FingerprintKey("find_duplicates", "  func $F() {}  ", "go", "/tmp/proj", opts1)
	k2 := FingerprintKey("find_duplicates", "func $F() {}", "go", "/tmp/proj", opts2)

	assert.Equal(t, k1, k2, "whitespace trimming and option-map ordering must not affect the key")
}

func TestFingerprintKeyDistinguishesOperations(t *testing.T) {
	k1 := FingerprintKey("find_duplicates", "p", "go", "/tmp/proj", nil)
	k2 := FingerprintKey("run_structural", "p", "go", "/tmp/proj", nil)
	assert.NotEqual(t, k1, k2)
}
