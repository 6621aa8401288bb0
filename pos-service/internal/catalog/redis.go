package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheVersion is part of every key. Bump it when CachedListing changes shape
// so old entries are ignored instead of decoded.
const cacheVersion = 2

// RedisCache keeps one CachedListing per tenant. Entries that fail validation
// are deleted on read and reported as ErrInvalidEntry.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	jitter  time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 10 * time.Minute,
		jitter:  5 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, tenantSlug string) (*CachedListing, error) {
	key := cacheKey(tenantSlug)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry CachedListing
	if err := json.Unmarshal(data, &entry); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	} else {
		err = entry.validate()
	}
	if err != nil {
		// drop it so the next load refills from the catalog
		r.client.Del(ctx, key)
		return nil, err
	}
	return &entry, nil
}

func (r *RedisCache) Set(ctx context.Context, tenantSlug string, entry *CachedListing) error {
	if err := entry.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	// tenants opened at the same moment must not expire together
	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(r.jitter)))
	if err := r.client.Set(ctx, cacheKey(tenantSlug), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", cacheKey(tenantSlug), err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, tenantSlug string) error {
	if err := r.client.Del(ctx, cacheKey(tenantSlug)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", cacheKey(tenantSlug), err)
	}
	return nil
}

func cacheKey(tenantSlug string) string {
	return fmt.Sprintf("pos:catalog:v%d:%s", cacheVersion, tenantSlug)
}
