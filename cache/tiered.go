package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"weak"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	HotHits   uint64
	WarmHits  uint64
	Misses    uint64
	Demotions uint64
	// Reclaimed counts warm entries found collected on read.
	Reclaimed uint64
}

// Tiered is a hot LRU tier backed by a weakly held warm tier.
//
// A key lives in at most one tier at a time. Values move hot to warm on
// demotion and never move warm to hot on their own: a warm hit is returned
// as is, and a later Put of the same key counts as a fresh hot insertion.
type Tiered[K comparable, V any] struct {
	capacity int

	// mu guards the hot tier. The warm tier is a sync.Map because its
	// entries are independent of each other.
	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List // front = most recently used

	warm sync.Map // K -> weak.Pointer[V]

	hotHits   atomic.Uint64
	warmHits  atomic.Uint64
	misses    atomic.Uint64
	demotions atomic.Uint64
	reclaimed atomic.Uint64
}

var _ Cache[string, int] = (*Tiered[string, int])(nil)

type hotEntry[K comparable, V any] struct {
	key   K
	value *V
}

// Option configures a Tiered cache.
type Option func(*config)

type config struct {
	capacity int
}

// WithCapacity sets the hot tier capacity. Values <= 0 keep [DefaultCapacity].
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewTiered creates an empty tiered cache.
func NewTiered[K comparable, V any](opts ...Option) *Tiered[K, V] {
	cfg := config{capacity: DefaultCapacity}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return &Tiered[K, V]{
		capacity: cfg.capacity,
		items:    make(map[K]*list.Element, cfg.capacity),
		order:    list.New(),
	}
}

// Capacity returns the hot tier capacity.
func (c *Tiered[K, V]) Capacity() int {
	return c.capacity
}

// Get looks in the hot tier first, promoting a hit to most recently used,
// then in the warm tier. A warm entry whose value was reclaimed is erased
// and reported as a miss.
func (c *Tiered[K, V]) Get(key K) (*V, bool) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		v := elem.Value.(*hotEntry[K, V]).value //nolint:errcheck // type is guaranteed by Put
		c.mu.Unlock()
		c.hotHits.Add(1)
		return v, true
	}
	c.mu.Unlock()

	raw, ok := c.warm.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	wp := raw.(weak.Pointer[V]) //nolint:errcheck // type is guaranteed by demote
	if v := wp.Value(); v != nil {
		c.warmHits.Add(1)
		return v, true
	}

	// Only erase the pointer we inspected; a concurrent demotion may have
	// stored a fresh one.
	if c.warm.CompareAndDelete(key, wp) {
		c.reclaimed.Add(1)
	}
	c.misses.Add(1)
	return nil, false
}

// Put inserts or refreshes key in the hot tier. When the hot tier grows
// past capacity the least recently used entry is demoted to the warm tier.
func (c *Tiered[K, V]) Put(key K, value *V) {
	if value == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Keep the single-tier invariant: a hot insertion supersedes any warm copy.
	c.warm.Delete(key)

	if elem, ok := c.items[key]; ok {
		elem.Value.(*hotEntry[K, V]).value = value //nolint:errcheck // type is guaranteed
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&hotEntry[K, V]{key: key, value: value})

	if c.order.Len() > c.capacity {
		c.demoteOldestLocked()
	}
}

func (c *Tiered[K, V]) demoteOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*hotEntry[K, V]) //nolint:errcheck // type is guaranteed
	c.order.Remove(oldest)
	delete(c.items, entry.key)
	c.warm.Store(entry.key, weak.Make(entry.value))
	c.demotions.Add(1)
}

// Clear empties both tiers.
func (c *Tiered[K, V]) Clear() {
	c.mu.Lock()
	clear(c.items)
	c.order.Init()
	c.mu.Unlock()

	c.warm.Clear()
}

// Len returns the number of hot entries and warm entries. Warm entries
// that were reclaimed but not yet read still count.
func (c *Tiered[K, V]) Len() (hot, warm int) {
	c.mu.Lock()
	hot = c.order.Len()
	c.mu.Unlock()

	c.warm.Range(func(_, _ any) bool {
		warm++
		return true
	})
	return hot, warm
}

// InHot reports whether key currently lives in the hot tier. It does not
// change recency.
func (c *Tiered[K, V]) InHot(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Stats returns a snapshot of the cache counters.
func (c *Tiered[K, V]) Stats() Stats {
	return Stats{
		HotHits:   c.hotHits.Load(),
		WarmHits:  c.warmHits.Load(),
		Misses:    c.misses.Load(),
		Demotions: c.demotions.Load(),
		Reclaimed: c.reclaimed.Load(),
	}
}
