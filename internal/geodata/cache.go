package geodata

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded, thread-safe memo. When full, the least recently used
// entry is evicted. There is no TTL: entries live until evicted or until the
// owning Client is dropped.
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

// NewCache returns a cache holding at most size entries.
func NewCache[K comparable, V any](size int) (*Cache[K, V], error) {
	l, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{lru: l}, nil
}

// Get returns the cached value and marks it as recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key, evicting the oldest entry if needed.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Len is the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
