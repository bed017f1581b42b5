package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultEmbeddingCapacity = 500
	DefaultSearchCapacity    = 50
)

// InsertionOrderCache is a bounded cache that evicts the oldest-inserted key when full.
// Reads never refresh an entry, so eviction follows insertion order rather than recency.
// Putting an existing key counts as a fresh insertion.
// Safe for concurrent use.
type InsertionOrderCache[K comparable, V any] struct {
	entries  *lru.Cache[K, V]
	capacity int
}

func NewInsertionOrderCache[K comparable, V any](capacity int) *InsertionOrderCache[K, V] {
	if capacity <= 0 {
		capacity = DefaultSearchCapacity
	}
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &InsertionOrderCache[K, V]{entries: entries, capacity: capacity}
}

func (c *InsertionOrderCache[K, V]) Get(key K) (V, bool) {
	return c.entries.Peek(key)
}

func (c *InsertionOrderCache[K, V]) Put(key K, value V) {
	if c.entries.Contains(key) {
		c.entries.Remove(key)
	}
	c.entries.Add(key, value)
}

func (c *InsertionOrderCache[K, V]) Len() int {
	return c.entries.Len()
}

func (c *InsertionOrderCache[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns keys from oldest to newest insertion.
func (c *InsertionOrderCache[K, V]) Keys() []K {
	return c.entries.Keys()
}
