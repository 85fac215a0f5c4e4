package browse

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftfs/driftfs/internal/metrics"
)

const (
	// DefaultCacheTTL is how long a cached directory listing stays fresh.
	DefaultCacheTTL = 45 * time.Second
	// DefaultCacheCapacity bounds the number of cached directories.
	DefaultCacheCapacity = 20
)

// CacheEntry is a point-in-time snapshot of a directory's entries.
// The raw entries are immutable once stored; only the lazily computed
// name-sorted view is filled in later.
type CacheEntry struct {
	Path      string
	FetchedAt time.Time
	Entries   []DirEntry

	// sorted is computed on first use. Concurrent computation is
	// idempotent, so no lock: losers just overwrite with an equal slice.
	sorted atomic.Pointer[[]DirEntry]
}

// SortedByName returns the entries sorted by name collation, directories and
// files intermixed. The result is memoized on the entry and must not be
// mutated by callers.
func (e *CacheEntry) SortedByName() []DirEntry {
	if p := e.sorted.Load(); p != nil {
		return *p
	}
	s := make([]DirEntry, len(e.Entries))
	copy(s, e.Entries)
	sort.Slice(s, func(i, j int) bool {
		return CompareNames(s[i].Name, s[j].Name) < 0
	})
	e.sorted.Store(&s)
	return s
}

// CacheConfig controls cache bounds. A nil Now defaults to time.Now,
// injectable so tests control expiry deterministically.
type CacheConfig struct {
	Capacity int
	TTL      time.Duration
	Now      func() time.Time
}

// DirectoryCache is a bounded, time-expiring cache of raw directory
// listings keyed by absolute path. Overflow evicts the oldest entry.
type DirectoryCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest at front
}

// NewDirectoryCache creates a cache with the given bounds.
func NewDirectoryCache(cfg CacheConfig) *DirectoryCache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCacheCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DirectoryCache{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached entry for path if it is still fresh.
// Expired entries are dropped on lookup.
func (c *DirectoryCache) Get(path string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		metrics.RecordDirCacheLookup(false)
		return nil, false
	}
	entry := el.Value.(*CacheEntry)
	if c.now().Sub(entry.FetchedAt) >= c.ttl {
		c.removeLocked(path, el)
		metrics.RecordDirCacheLookup(false)
		return nil, false
	}
	metrics.RecordDirCacheLookup(true)
	return entry, true
}

// Put stores a fresh snapshot for path, evicting the oldest entry when
// the cache is full.
func (c *DirectoryCache) Put(path string, entries []DirEntry) *CacheEntry {
	entry := &CacheEntry{
		Path:      path,
		FetchedAt: c.now(),
		Entries:   entries,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.removeLocked(path, el)
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*CacheEntry).Path, oldest)
	}
	c.entries[path] = c.order.PushBack(entry)
	return entry
}

// Invalidate drops the cached snapshot for path, if any.
func (c *DirectoryCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		c.removeLocked(path, el)
	}
}

// Len returns the number of cached directories.
func (c *DirectoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DirectoryCache) removeLocked(path string, el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, path)
}
