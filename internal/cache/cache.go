// Package cache implements the query cache (C2): a bounded, TTL-and-LRU
// keyed store fronting repeated matcher/duplication-pipeline queries.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dupesmith/dupesmith/internal/logging"
)

// Stats reports hit/miss/size counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

type entry struct {
	key       string
	value     any
	createdAt time.Time
	elem      *list.Element
}

// Cache is a bounded store evicting by TTL first (lazily, on access), then
// LRU under size pressure. Safe for concurrent readers and a single writer
// per key (a single mutex serializes all access, matching the contract's
// "single writer per key" rather than sharding by key).
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	order    *list.List // front = most recently used

	hits   int64
	misses int64
}

// New returns a Cache bounded to capacity entries, each expiring ttl after
// insertion.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry),
		order:    list.New(),
	}
}

// Get returns the value for key, or (nil, false) on a miss. An expired
// entry is treated as a miss and removed.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.createdAt) > c.ttl {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

// Put inserts or replaces the value for key. A replacing Put refreshes LRU
// position but preserves the original creation timestamp, so TTL continues
// from the first insertion rather than resetting.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		c.order.MoveToFront(e.elem)
		return
	}

	e := &entry{key: key, value: value, createdAt: time.Now()}
	e.elem = c.order.PushFront(e)
	c.items[key] = e

	for len(c.items) > c.capacity {
		c.evictOldestLocked()
	}
}

// InvalidatePrefix removes every key with the given prefix.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*entry
	for k, e := range c.items {
		if strings.HasPrefix(k, prefix) {
			toRemove = append(toRemove, e)
		}
	}
	for _, e := range toRemove {
		c.removeLocked(e)
	}
	return len(toRemove)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.order = list.New()
}

// Stats returns current hit/miss/size counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.items)}
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.items, e.key)
}

// evictOldestLocked evicts an expired entry if one exists, otherwise the
// least-recently-used entry (TTL-first, then LRU, per the cache's eviction
// policy).
func (c *Cache) evictOldestLocked() {
	if c.ttl > 0 {
		for k, e := range c.items {
			if time.Since(e.createdAt) > c.ttl {
				c.removeLocked(e)
				logging.Get(logging.CategoryCache).Debug("evicted expired entry: %s", k)
				return
			}
		}
	}
	back := c.order.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	c.removeLocked(e)
	logging.Get(logging.CategoryCache).Debug("evicted LRU entry: %s", e.key)
}

// FingerprintKey builds the stable cache key for
// (operation, pattern_or_rule, language, target_path, relevant_opts):
// patterns are trimmed, paths are canonicalized, and option maps are
// sorted before hashing, so equivalent queries always collide on the same
// key regardless of map iteration order or incidental whitespace.
func FingerprintKey(operation, patternOrRule, language, targetPath string, opts map[string]any) string {
	canonicalPath, err := filepath.Abs(targetPath)
	if err != nil {
		canonicalPath = targetPath
	}
	canonicalPath = filepath.Clean(canonicalPath)

	var sortedOpts []string
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sortedOpts = append(sortedOpts, fmt.Sprintf("%s=%v", k, opts[k]))
	}

	raw := strings.Join([]string{
		operation,
		strings.TrimSpace(patternOrRule),
		language,
		canonicalPath,
		strings.Join(sortedOpts, "&"),
	}, "|")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
