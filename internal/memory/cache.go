// Package memory provides a small LRU cache, used to hold compiled
// expression and script programs keyed by source text.
package memory

import "sync"

// Stats contains cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Size      int
	MaxSize   int
}

// LRU is a fixed-capacity cache evicting the least recently used entry.
// Safe for concurrent use.
type LRU struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*cacheEntry
	head    *cacheEntry
	tail    *cacheEntry
	stats   Stats
}

type cacheEntry struct {
	key        string
	value      any
	prev, next *cacheEntry
}

// NewLRU creates a cache holding at most maxSize entries. Sizes below
// one are clamped to one.
func NewLRU(maxSize int) *LRU {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRU{
		maxSize: maxSize,
		entries: make(map[string]*cacheEntry),
		stats:   Stats{MaxSize: maxSize},
	}

	// Sentinel nodes
	c.head = &cacheEntry{}
	c.tail = &cacheEntry{}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves a value and marks it most recently used.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.stats.Misses++
		return nil, false
	}

	c.moveToFront(entry)
	c.stats.Hits++
	return entry.value, true
}

// Set stores a value, evicting the oldest entry when full.
func (c *LRU) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Sets++

	if entry, exists := c.entries[key]; exists {
		entry.value = value
		c.moveToFront(entry)
		return
	}

	entry := &cacheEntry{key: key, value: value}
	c.entries[key] = entry
	c.addToFront(entry)
	c.stats.Size++

	if c.stats.Size > c.maxSize {
		c.evictOldest()
	}
}

// Delete removes a key.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.removeEntry(entry)
		c.stats.Deletes++
	}
}

// Clear removes all entries.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.stats.Size = 0
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Size
}

// Stats returns a copy of the cache counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *LRU) removeEntry(entry *cacheEntry) {
	delete(c.entries, entry.key)
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.stats.Size--
}

func (c *LRU) moveToFront(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *LRU) addToFront(entry *cacheEntry) {
	entry.next = c.head.next
	entry.prev = c.head
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LRU) evictOldest() {
	oldest := c.tail.prev
	if oldest != c.head {
		c.removeEntry(oldest)
		c.stats.Evictions++
	}
}
