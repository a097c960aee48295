package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(at *time.Time) Clock {
	return func() time.Time { return *at }
}

func TestCacheSetGet(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithClock[uint, string](time.Minute, fixedClock(&now))

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, "a")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	// 覆盖写入
	c.Set(1, "b")
	v, _ = c.Get(1)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, c.Len())
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithClock[uint, string](time.Minute, fixedClock(&now))
	c.Set(1, "a")

	// 恰好到期还未过期
	now = now.Add(time.Minute)
	_, ok := c.Get(1)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(1)
	assert.False(t, ok)
	// 过期条目被惰性清除
	assert.Equal(t, 0, c.Len())
}

func TestCacheSetRefreshesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithClock[uint, string](time.Minute, fixedClock(&now))
	c.Set(1, "a")

	now = now.Add(50 * time.Second)
	c.Set(1, "b")

	now = now.Add(50 * time.Second)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("x", 1)
	c.Delete("x")
	_, ok := c.Get("x")
	assert.False(t, ok)
	// 删除不存在的 key 不报错
	c.Delete("y")
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set(n%5, n)
			c.Get(n % 5)
			if n%7 == 0 {
				c.Delete(n % 5)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 5)
}
