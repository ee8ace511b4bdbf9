package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores authoritative prices keyed by canonical configuration.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, error)
	Set(ctx context.Context, key string, price decimal.Decimal) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, error) {
	s, err := r.client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrCacheMiss
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis get failed: %w", err)
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cached price %q: %w", s, err)
	}
	return price, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, price decimal.Decimal) error {
	if err := r.client.Set(ctx, cacheKey(key), price.String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "quote:" + key
}

// MemoryCache is an in-process cache for single-instance deployments.
type MemoryCache struct {
	lru *expirable.LRU[string, decimal.Decimal]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, decimal.Decimal](size, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, error) {
	if v, ok := m.lru.Get(key); ok {
		return v, nil
	}
	return decimal.Zero, ErrCacheMiss
}

func (m *MemoryCache) Set(_ context.Context, key string, price decimal.Decimal) error {
	m.lru.Add(key, price)
	return nil
}
