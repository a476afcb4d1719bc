package tiller

import (
	"container/list"
	"sync"
	"time"
)

// ttlCache is a bounded LRU with per-entry expiry. Get refreshes recency;
// an expired entry is removed on access and reported missing. Set evicts
// the oldest entries until the size is within capacity.
// All operations are atomic with respect to the cache.
type ttlCache[V any] struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration // 0 = no expiry
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
}

type cacheEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero = never
}

func newTTLCache[V any](capacity int, ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{
		cap:     capacity,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the value for key, refreshing its recency. An entry past its
// expiry is removed and reported missing.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*cacheEntry[V])
	if !ent.expiresAt.IsZero() && !c.now().Before(ent.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

// Set stores value under key, evicting the oldest entries beyond capacity.
func (c *ttlCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*cacheEntry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry[V]{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = el

	for c.cap > 0 && c.order.Len() > c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry[V]).key)
	}
}

// Delete removes key. Reports whether an entry existed.
func (c *ttlCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// Len returns the number of live entries, expired ones included until they
// are touched.
func (c *ttlCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
