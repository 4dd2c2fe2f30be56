package blob

import (
	"sync"
	"time"
)

// URLCache 签名 URL 缓存
// 条目是纯粹的建议性质：miss 了重签一次就行，所以实现不需要任何强一致保证
type URLCache interface {
	Get(key string) (string, bool)
	Set(key string, url string, ttl time.Duration)
}

// memoryCache 进程内 TTL 缓存，URLCache 的默认实现
// 显式归属于 Client 实例，不做全局单例
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

func NewMemoryCache() URLCache {
	return &memoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	// 惰性过期：读到过期条目时顺手删掉
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return e.url, true
}

func (c *memoryCache) Set(key string, url string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{url: url, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}
