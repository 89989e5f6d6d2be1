// Package cache provides the two-tier in-memory store used for decoded images.
//
// The hot tier is a bounded LRU that guarantees retention up to its capacity.
// Entries pushed out of the hot tier are demoted into the warm tier, which
// only holds weak pointers: a warm entry survives as long as something else
// (typically a target still displaying the image) keeps the value alive, and
// silently disappears once the garbage collector reclaims it.
package cache

// Cache is the store consulted by the downloader.
//
// Implementations must be safe for concurrent use.
type Cache[K comparable, V any] interface {
	// Get returns the cached value for key, or nil, false on a miss.
	Get(key K) (*V, bool)

	// Put stores value under key. A nil value is ignored.
	Put(key K, value *V)

	// Clear drops every entry.
	Clear()
}

// DefaultCapacity is the hot tier capacity used when none is configured.
const DefaultCapacity = 64
