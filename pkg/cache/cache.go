package cache

import (
	"sync"
	"time"
)

type entry struct {
	val string
	exp time.Time
}

// MemoryCache is a string cache whose entries expire after a fixed TTL.
type MemoryCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || c.now().After(e.exp) {
		return "", false
	}
	return e.val, true
}

func (c *MemoryCache) Set(key, val string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry{val: val, exp: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Errors are not cached.
func (c *MemoryCache) GetOrLoad(key string, load func() (string, error)) (string, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return "", err
	}
	c.Set(key, v)
	return v, nil
}
