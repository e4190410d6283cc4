// Package cache provides the sharded LRU cache that de-duplicates
// immutable device objects such as samplers.
//
// Values are created on first use with GetOrCreate and handed back to
// every later caller with the same key. When a shard exceeds its capacity
// the least recently used entry is removed and passed to the eviction
// callback, which owns releasing it.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// ShardCount is the number of shards. It is a power of two so that shard
// selection is a mask.
const ShardCount = 8

// DefaultCapacity is the per-shard capacity used when none is given.
const DefaultCapacity = 64

// Hasher computes the shard hash of a key.
type Hasher[K any] func(K) uint64

// HashBytes returns the FNV-1a hash of b.
func HashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b) // fnv.Write never returns an error
	return h.Sum64()
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or zero before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*list.Element
	order   *list.List // front = most recently used
}

// Sharded is a thread-safe LRU cache split into ShardCount shards.
type Sharded[K comparable, V any] struct {
	shards   [ShardCount]*shard[K, V]
	hasher   Hasher[K]
	capacity int
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity entries per shard.
// onEvict, if not nil, is called with the shard lock held for every entry
// removed by eviction, Delete or Clear.
func New[K comparable, V any](capacity int, hasher Hasher[K], onEvict func(K, V)) *Sharded[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Sharded[K, V]{
		hasher:   hasher,
		capacity: capacity,
		onEvict:  onEvict,
	}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			entries: make(map[K]*list.Element),
			order:   list.New(),
		}
	}
	return c
}

func (c *Sharded[K, V]) shardOf(key K) *shard[K, V] {
	return c.shards[c.hasher(key)&(ShardCount-1)]
}

// Get returns the cached value of key.
func (c *Sharded[K, V]) Get(key K) (V, bool) {
	s := c.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	s.order.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*entry[K, V]).value, true
}

// GetOrCreate returns the cached value of key, creating it with create on
// a miss. create runs under the shard lock so concurrent callers never
// create the same key twice. A create error is returned and nothing is
// cached.
func (c *Sharded[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	s := c.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.order.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*entry[K, V]).value, true, nil
	}
	c.misses.Add(1)

	value, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	for s.order.Len() >= c.capacity {
		c.evictOldest(s)
	}
	s.entries[key] = s.order.PushFront(&entry[K, V]{key: key, value: value})
	return value, false, nil
}

// Delete removes key and reports whether it was present.
func (c *Sharded[K, V]) Delete(key K) bool {
	s := c.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return false
	}
	c.remove(s, el)
	return true
}

// Clear removes every entry.
func (c *Sharded[K, V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		for el := s.order.Front(); el != nil; {
			next := el.Next()
			c.remove(s, el)
			el = next
		}
		s.mu.Unlock()
	}
}

// Len returns the number of entries across all shards.
func (c *Sharded[K, V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the counters.
func (c *Sharded[K, V]) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity * ShardCount,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Sharded[K, V]) evictOldest(s *shard[K, V]) {
	el := s.order.Back()
	if el == nil {
		return
	}
	c.remove(s, el)
	c.evictions.Add(1)
}

func (c *Sharded[K, V]) remove(s *shard[K, V], el *list.Element) {
	e := el.Value.(*entry[K, V])
	s.order.Remove(el)
	delete(s.entries, e.key)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
