// Package tsquery file: internal/tsquery/cache.go
package tsquery

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheEntries = 1024
	defaultCacheTTL     = 10 * time.Minute
)

// Cache 缓存编译结果。轮询客户端会以相同的检索串反复请求，
// 编译是纯函数，因此按原始输入缓存是安全的。
type Cache struct {
	lru *lru.LRU[string, *Expression]
}

// NewCache 创建一个编译缓存；size 或 ttl 非正时使用默认值
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{lru: lru.NewLRU[string, *Expression](size, nil, ttl)}
}

// Compile 返回缓存的编译结果，未命中时编译并写入缓存。
// 返回的 *Expression 在调用方之间共享，不得修改。
func (c *Cache) Compile(query string) *Expression {
	if c == nil {
		return Compile(query)
	}
	if e, ok := c.lru.Get(query); ok {
		return e
	}
	e := Compile(query)
	c.lru.Add(query, e)
	return e
}

func (c *Cache) Len() int { return c.lru.Len() }
