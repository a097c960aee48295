package cache

import (
	"sync"
	"time"
)

// Clock 可注入的时钟，测试时替换为固定时间
type Clock func() time.Time

type entry[V any] struct {
	value    V
	expireAt time.Time
}

// TTLCache 进程内带过期的查找表，key → (value, expiry)
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   Clock
	entries map[K]entry[V]
}

func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return NewWithClock[K, V](ttl, time.Now)
}

func NewWithClock[K comparable, V any](ttl time.Duration, clock Clock) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[K]entry[V]),
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.clock().After(e.expireAt) {
		c.mu.Lock()
		// 重查，避免清掉并发 Set 写入的新值
		if cur, ok := c.entries[key]; ok && c.clock().After(cur.expireAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expireAt: c.clock().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
