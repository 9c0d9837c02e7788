package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultCartTTL bounds how stale a cached cart can get if an invalidation
// is ever lost; carts mutate often enough that anything longer buys nothing.
const DefaultCartTTL = 15 * time.Minute

// NewRedisCache caches carts for baseTTL plus a random jitter of up to a
// fifth of it, so a table's worth of entries does not expire in lockstep.
// A non-positive baseTTL selects DefaultCartTTL.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultCartTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, accountID string) (*domain.Cart, error) {
	key := cacheKey(accountID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

func (r RedisCache) Set(ctx context.Context, accountID string, cart *domain.Cart) error {
	key := cacheKey(accountID)
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL
	if spread := int64(r.baseTTL / 5); spread > 0 {
		ttl += time.Duration(rand.Int63n(spread))
	}
	if ret := r.client.Set(ctx, key, string(jsonCart), ttl); ret.Err() != nil {
		return fmt.Errorf("redis set failed: %w", ret.Err())
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, accountID string) error {
	key := cacheKey(accountID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(accountID string) string {
	return fmt.Sprintf("cart:%s", accountID)
}
