package progress

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long an owner's rows are served from the cache.
const DefaultCacheTTL = 5 * time.Minute

var nowFunc = time.Now // mockable

type cacheEntry struct {
	rows      []Record
	fetchedAt time.Time
}

// Cache is a per-owner read-through cache of progress rows.
// It is local to the process: other instances are not told about invalidations.
type Cache struct {
	ttl time.Duration

	mutex    sync.Mutex
	entries  map[string]cacheEntry
	versions map[string]uint64
	epoch    uint64 // bumped by InvalidateAll
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
		versions: make(map[string]uint64),
	}
}

// Get returns the cached rows of owner, if fresher than the TTL.
func (c *Cache) Get(owner string) ([]Record, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[owner]
	if !ok {
		return nil, false
	}
	if nowFunc().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, owner)
		return nil, false
	}
	return copyRecords(entry.rows), true
}

// Set stores the rows of owner with the current timestamp.
func (c *Cache) Set(owner string, rows []Record) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[owner] = cacheEntry{rows: copyRecords(rows), fetchedAt: nowFunc()}
}

// Version returns a counter bumped by every invalidation of owner.
func (c *Cache) Version(owner string) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.versions[owner] + c.epoch
}

// SetIfVersion stores rows only if owner was not invalidated since Version returned version.
// A read that started before a write must not repopulate the cache with pre-write rows.
func (c *Cache) SetIfVersion(owner string, rows []Record, version uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.versions[owner]+c.epoch != version {
		return false
	}
	c.entries[owner] = cacheEntry{rows: copyRecords(rows), fetchedAt: nowFunc()}
	return true
}

// Invalidate drops the entry of owner.
func (c *Cache) Invalidate(owner string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, owner)
	c.versions[owner]++
}

// InvalidateAll drops every entry; used when the store was changed behind our back.
func (c *Cache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.epoch++
}

// Sweep evicts expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := nowFunc()
	var n int
	for owner, entry := range c.entries {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			delete(c.entries, owner)
			n++
		}
	}
	return n
}

// Len returns the number of cached owners.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

func copyRecords(rows []Record) []Record {
	if rows == nil {
		return nil
	}
	cp := make([]Record, len(rows))
	copy(cp, rows)
	return cp
}
