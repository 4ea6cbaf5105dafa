package providers

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is a small TTL LRU used for model-list caching.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*lruEntry[K, V]
	order    *list.List
	capacity int
	ttl      time.Duration
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	element   *list.Element
}

func newLRUCache[K comparable, V any](capacity int, ttl time.Duration) *lruCache[K, V] {
	if capacity <= 0 {
		capacity = 64
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &lruCache[K, V]{
		entries:  make(map[K]*lruEntry[K, V]),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(e.element)
	return e.value, true
}

func (c *lruCache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(e.element)
		return
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*lruEntry[K, V]))
	}
	e := &lruEntry[K, V]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
}

// remove must be called with the lock held.
func (c *lruCache[K, V]) remove(e *lruEntry[K, V]) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}
