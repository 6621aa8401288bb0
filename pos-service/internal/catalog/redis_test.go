package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return cache, mr, cleanup
}

var fetchedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func storeEntry(t *testing.T, mr *miniredis.Miniredis, tenant string, entry CachedListing) {
	t.Helper()
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(tenant), string(data)))
}

func TestRedisGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	listing := testListing()
	storeEntry(t, mr, "pizzaria", CachedListing{Listing: listing, FetchedAt: fetchedAt})

	got, err := cache.Get(context.Background(), "pizzaria")
	require.NoError(t, err)
	require.Len(t, got.Listing.Products, 4)
	assert.Equal(t, "Margherita", got.Listing.Products[0].Name)
	assert.True(t, got.Listing.Products[0].UnitPrice.Equal(listing.Products[0].UnitPrice))
	assert.True(t, fetchedAt.Equal(got.FetchedAt))
}

func TestRedisGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	got, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisGet_InvalidEntryIsDropped(t *testing.T) {
	dup := testListing()
	dup.Products = append(dup.Products, dup.Products[0])
	negative := testListing()
	negative.Products[1].UnitPrice = decimal.RequireFromString("-5.50")
	sameCode := testListing()
	sameCode.Products[2].Code = sameCode.Products[1].Code

	tests := []struct {
		name string
		raw  string
	}{
		{"broken json", `{"listing": {"products": [`},
		{"no fetch time", mustJSON(t, CachedListing{Listing: testListing()})},
		{"duplicate product", mustJSON(t, CachedListing{Listing: dup, FetchedAt: fetchedAt})},
		{"duplicate code", mustJSON(t, CachedListing{Listing: sameCode, FetchedAt: fetchedAt})},
		{"negative price", mustJSON(t, CachedListing{Listing: negative, FetchedAt: fetchedAt})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, mr, cleanup := setupTestRedis(t)
			defer cleanup()
			require.NoError(t, mr.Set(cacheKey("pizzaria"), tt.raw))

			_, err := cache.Get(context.Background(), "pizzaria")
			require.ErrorIs(t, err, ErrInvalidEntry)
			assert.False(t, mr.Exists(cacheKey("pizzaria")), "invalid entry must be removed")
		})
	}
}

func TestRedisSet_WithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), "pizzaria",
		&CachedListing{Listing: testListing(), FetchedAt: fetchedAt}))

	stored, err := mr.Get(cacheKey("pizzaria"))
	require.NoError(t, err)
	var decoded CachedListing
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Len(t, decoded.Listing.Categories, 2)
	assert.True(t, fetchedAt.Equal(decoded.FetchedAt))

	ttl := mr.TTL(cacheKey("pizzaria"))
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)
}

func TestRedisSet_RejectsInvalidEntry(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	err := cache.Set(context.Background(), "pizzaria", &CachedListing{Listing: testListing()})
	require.ErrorIs(t, err, ErrInvalidEntry)
	assert.False(t, mr.Exists(cacheKey("pizzaria")))
}

func TestRedisGet_IgnoresOtherVersions(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	// a listing stored by an older release under its own key
	require.NoError(t, mr.Set("pos:catalog:v1:pizzaria", mustJSON(t, testListing())))

	_, err := cache.Get(context.Background(), "pizzaria")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisDelete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(cacheKey("pizzaria"), "{}"))
	require.NoError(t, cache.Delete(context.Background(), "pizzaria"))
	assert.False(t, mr.Exists(cacheKey("pizzaria")))

	assert.NoError(t, cache.Delete(context.Background(), "nonexistent"))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "pos:catalog:v2:pizzaria", cacheKey("pizzaria"))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

var _ Cache = (*RedisCache)(nil)
