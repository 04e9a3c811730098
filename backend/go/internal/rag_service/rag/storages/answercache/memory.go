package answercache

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/pkg/util"
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// MemoryCache is a process-local answer cache bounded by entry count and TTL.
// Entries from an older generation are never read again and age out of the LRU.
type MemoryCache struct {
	lru        *util.LRUCache[string, schema.Answer]
	generation atomic.Uint64
}

// NewMemoryCache creates a cache holding at most size answers for at most ttl each.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("answer cache size must be positive, got %d", size)
	}
	lru, err := util.NewWithConfig(util.CacheConfig[string, schema.Answer]{Capacity: size, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: lru}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (schema.Answer, bool, error) {
	answer, ok := c.lru.Get(c.scoped(key))
	return answer, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, answer schema.Answer) error {
	c.lru.Put(c.scoped(key), answer, 1)
	return nil
}

func (c *MemoryCache) Invalidate(context.Context) error {
	c.generation.Add(1)
	return nil
}

func (c *MemoryCache) scoped(key string) string {
	return strconv.FormatUint(c.generation.Load(), 10) + ":" + key
}

var _ Cache = (*MemoryCache)(nil)
