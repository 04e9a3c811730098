package answercache

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "docrag:answer:"
	generationKey = "docrag:answer-generation"
)

// RedisCache shares answers across replicas. Every key expires after ttl.
// Keys are scoped by a shared generation counter, so an ingest on any replica hides
// the answers cached by all of them.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache creates a cache on rdb. A positive ttl is required so the cache stays bounded.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) (*RedisCache, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("redis answer cache requires a positive ttl")
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (schema.Answer, bool, error) {
	scoped, err := c.scoped(ctx, key)
	if err != nil {
		return schema.Answer{}, false, err
	}
	data, err := c.rdb.Get(ctx, scoped).Bytes()
	if errors.Is(err, redis.Nil) {
		return schema.Answer{}, false, nil
	}
	if err != nil {
		return schema.Answer{}, false, fmt.Errorf("failed to read cached answer: %w", err)
	}
	var answer schema.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		return schema.Answer{}, false, fmt.Errorf("failed to decode cached answer: %w", err)
	}
	return answer, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, answer schema.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	scoped, err := c.scoped(ctx, key)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, scoped, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache answer: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached answers: %w", err)
	}
	return nil
}

func (c *RedisCache) scoped(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		gen = "0"
	} else if err != nil {
		return "", fmt.Errorf("failed to read answer generation: %w", err)
	}
	return keyPrefix + gen + ":" + key, nil
}

var _ Cache = (*RedisCache)(nil)
