package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time view of a cache's counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// TTLCache is a bounded, in-process cache with per-entry time-to-live.
//
// Expiry is lazy: a stale entry is dropped when it is read, or by an explicit
// Cleanup sweep. When the cache is full and a new key arrives, the earliest
// inserted key is evicted regardless of how recently it was read. Overwriting a
// key keeps its original insertion position. Safe for concurrent use.
type TTLCache[T any] struct {
	mu         sync.Mutex
	name       string
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	order   *list.List
	entries map[string]*entry[T]

	hits   uint64
	misses uint64
}

type entry[T any] struct {
	value   T
	written time.Time
	ttl     time.Duration
	elem    *list.Element
}

// New returns an empty cache holding at most maxSize entries (minimum 1), each
// living for ttl unless set with SetWithTTL.
func New[T any](name string, maxSize int, ttl time.Duration, opts ...Option) *TTLCache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &TTLCache[T]{
		name:       name,
		maxSize:    maxSize,
		defaultTTL: ttl,
		now:        o.now,
		order:      list.New(),
		entries:    make(map[string]*entry[T]),
	}
}

// Name returns the label the cache was created with.
func (c *TTLCache[T]) Name() string { return c.name }

// Get returns the value for key if present and not older than its TTL.
// Every call counts as exactly one hit or one miss.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.expiredLocked(e, c.now()) {
		c.removeLocked(key, e)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *TTLCache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with the given TTL.
func (c *TTLCache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.written = now
		e.ttl = ttl
		return
	}
	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest := front.Value.(string)
			c.removeLocked(oldest, c.entries[oldest])
		}
	}
	c.entries[key] = &entry[T]{
		value:   value,
		written: now,
		ttl:     ttl,
		elem:    c.order.PushBack(key),
	}
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*entry[T])
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *TTLCache[T]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		key := el.Value.(string)
		if e := c.entries[key]; c.expiredLocked(e, now) {
			c.removeLocked(key, e)
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns the current counters and entry count.
func (c *TTLCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// HitRate returns hits as a percentage of lookups, 0 when there were none.
func (c *TTLCache[T]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}

// ResetStats zeroes the hit and miss counters.
func (c *TTLCache[T]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
}

func (c *TTLCache[T]) expiredLocked(e *entry[T], now time.Time) bool {
	return now.Sub(e.written) > e.ttl
}

func (c *TTLCache[T]) removeLocked(key string, e *entry[T]) {
	c.order.Remove(e.elem)
	delete(c.entries, key)
}
