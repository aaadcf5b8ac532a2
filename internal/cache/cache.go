package cache

import "sync"

// Cache is a generic LRU cache for values that own external resources,
// such as GPU handles.
//
// Every entry that leaves the cache through eviction, Delete, Set
// replacement or Purge is passed to the release function, outside the
// cache lock. Forget is the exception: it drops entries without releasing
// them, for handles whose owner (a lost GPU device) is already gone.
//
// Cache is safe for concurrent use.
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	// Recency list: head is the most recently used entry.
	head, tail *entry[K, V]
	limit      int
	release func(K, V)

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

// released is a key/value pair waiting for its release call.
type released[K comparable, V any] struct {
	key   K
	value V
}

// New creates a cache holding at most limit entries. A limit of 0 means
// unlimited. release may be nil.
func New[K comparable, V any](limit int, release func(K, V)) *Cache[K, V] {
	if release == nil {
		release = func(K, V) {}
	}
	return &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		limit:   limit,
		release: release,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.touchLocked(e)
	return e.value, true
}

// Set stores a value. A previous value under the same key is released.
// Entries beyond the limit are evicted oldest first.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	var out []released[K, V]
	if e, ok := c.entries[key]; ok {
		out = append(out, released[K, V]{key, e.value})
		e.value = value
		c.touchLocked(e)
	} else {
		c.insertLocked(key, value)
		out = c.evictLocked(out)
	}
	c.mu.Unlock()

	c.releaseAll(out)
}

// GetOrCreate returns the cached value or stores the result of create.
// create runs under the cache lock so a key is never built twice; an error
// from create leaves the cache unchanged.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.touchLocked(e)
		c.mu.Unlock()
		return e.value, nil
	}
	c.misses++

	value, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero V
		return zero, err
	}
	c.insertLocked(key, value)
	out := c.evictLocked(nil)
	c.mu.Unlock()

	c.releaseAll(out)
	return value, nil
}

// Delete removes and releases an entry.
// Returns true if the entry was found.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if ok {
		c.release(key, e.value)
	}
	return ok
}

// Purge removes and releases every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	out := make([]released[K, V], 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, released[K, V]{k, e.value})
	}
	c.resetLocked()
	c.mu.Unlock()

	c.releaseAll(out)
}

// Forget removes every entry without releasing it.
func (c *Cache[K, V]) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Cache[K, V]) resetLocked() {
	c.entries = make(map[K]*entry[K, V])
	c.head, c.tail = nil, nil
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Keys returns the cached keys, most recently used first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.entries))
	for e := c.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Capacity:  c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evictLocked removes least recently used entries until the cache is within
// its limit and appends them to out.
// Caller must hold c.mu.
func (c *Cache[K, V]) evictLocked(out []released[K, V]) []released[K, V] {
	if c.limit <= 0 {
		return out
	}
	for len(c.entries) > c.limit && c.tail != nil {
		e := c.tail
		c.removeLocked(e)
		c.evictions++
		out = append(out, released[K, V]{e.key, e.value})
	}
	return out
}

func (c *Cache[K, V]) insertLocked(key K, value V) {
	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.pushFrontLocked(e)
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V]) {
	delete(c.entries, e.key)
	c.unlinkLocked(e)
}

// touchLocked marks e most recently used.
func (c *Cache[K, V]) touchLocked(e *entry[K, V]) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushFrontLocked(e)
}

func (c *Cache[K, V]) pushFrontLocked(e *entry[K, V]) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[K, V]) unlinkLocked(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache[K, V]) releaseAll(out []released[K, V]) {
	for _, r := range out {
		c.release(r.key, r.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the entry limit (0 = unlimited).
	Capacity int
	// Hits is the number of cache hits.
	Hits uint64
	// Misses is the number of cache misses.
	Misses uint64
	// HitRate is the cache hit rate 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries evicted by the limit.
	Evictions uint64
}
