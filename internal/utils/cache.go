package utils

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/patrickmn/go-cache"
)

// Cache 全局热点缓存（问答响应、统计数据等短时数据）
var Cache *cache.Cache

// InitCache 初始化全局缓存
func InitCache() {
	// 默认过期时间5分钟，清理间隔10分钟
	Cache = cache.New(5*time.Minute, 10*time.Minute)
}

// CacheGet 获取缓存值
func CacheGet(key string) (interface{}, bool) {
	return Cache.Get(key)
}

// CacheSet 设置缓存值
func CacheSet(key string, value interface{}, duration time.Duration) {
	Cache.Set(key, value, duration)
}

// CacheDelete 删除缓存
func CacheDelete(key string) {
	Cache.Delete(key)
}

// CacheItem 包装实际的数据，增加过期时间
type CacheItem[T any] struct {
	Value     T
	ExpiredAt time.Time
}

// EntryCache 有界 TTL 缓存，挡在外部元数据 API 前面减少重复调用。
// 容量满时由底层 LRU 淘汰一条旧记录；过期条目在读取时惰性删除，等同未命中。
type EntryCache[T any] struct {
	storage    *lru.Cache[string, CacheItem[T]]
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

// EntryCacheStats 缓存统计
type EntryCacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewEntryCache 初始化，size 是最大缓存条数，ttl 是默认有效期
func NewEntryCache[T any](size int, ttl time.Duration) *EntryCache[T] {
	// lru.New 是线程安全的
	c, _ := lru.New[string, CacheItem[T]](size)
	return &EntryCache[T]{
		storage:    c,
		defaultTTL: ttl,
	}
}

// Set 写入并按默认 TTL 设置过期时间
func (c *EntryCache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL 写入并指定过期时间
func (c *EntryCache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.storage.Add(key, CacheItem[T]{
		Value:     value,
		ExpiredAt: time.Now().Add(ttl),
	})
}

// Get 读取，过期视同未命中并惰性删除
func (c *EntryCache[T]) Get(key string) (T, bool) {
	var zero T
	item, ok := c.storage.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	if time.Now().After(item.ExpiredAt) {
		c.storage.Remove(key)
		c.misses.Add(1)
		return zero, false
	}

	c.hits.Add(1)
	return item.Value, true
}

// Delete 删除
func (c *EntryCache[T]) Delete(key string) {
	c.storage.Remove(key)
}

// Clear 清空
func (c *EntryCache[T]) Clear() {
	c.storage.Purge()
}

// Len 当前条数
func (c *EntryCache[T]) Len() int {
	return c.storage.Len()
}

// Stats 命中率统计
func (c *EntryCache[T]) Stats() EntryCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return EntryCacheStats{
		Size:    c.storage.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}
