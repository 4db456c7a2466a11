//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/url-mapping/internal/mapping"
	"github.com/serroba/url-mapping/internal/store"
	"github.com/serroba/url-mapping/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisCacheRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	client := testutil.Redis(t)

	t.Run("serves cached reads without hitting the store", func(t *testing.T) {
		counting := &countingRepository{Repository: store.NewMemoryStore()}
		cache := store.NewRedisCacheRepository(counting, client, time.Minute, zap.NewNop(),
			store.WithCachePrefix("it-reads:"))

		require.NoError(t, cache.Create(ctx, &mapping.Mapping{
			LongURL: "https://a.com", ShortURL: "S1lkL1", CreatedBy: "alice",
		}))

		_, err := cache.FindByShortURL(ctx, "S1lkL1")
		require.NoError(t, err)

		counting.finds = 0

		got, err := cache.FindByShortURL(ctx, "S1lkL1")
		require.NoError(t, err)
		assert.Equal(t, "https://a.com", got.LongURL)
		assert.Equal(t, "alice", got.CreatedBy)

		got, err = cache.FindByLongURL(ctx, "https://a.com")
		require.NoError(t, err)
		assert.Equal(t, mapping.ShortCode("S1lkL1"), got.ShortURL)

		assert.Zero(t, counting.finds, "both reads should come from redis")
	})

	t.Run("populates the cache on a miss", func(t *testing.T) {
		backing := store.NewMemoryStore()
		require.NoError(t, backing.Create(ctx, &mapping.Mapping{LongURL: "https://b.com", ShortURL: "1v0qjg"}))

		counting := &countingRepository{Repository: backing}
		cache := store.NewRedisCacheRepository(counting, client, time.Minute, zap.NewNop())

		_, err := cache.FindByShortURL(ctx, "1v0qjg")
		require.NoError(t, err)
		_, err = cache.FindByShortURL(ctx, "1v0qjg")
		require.NoError(t, err)

		assert.Equal(t, 1, counting.finds)
	})

	t.Run("increments keep the cached visit count current", func(t *testing.T) {
		backing := store.NewMemoryStore()
		cache := store.NewRedisCacheRepository(backing, client, time.Minute, zap.NewNop())

		require.NoError(t, cache.Create(ctx, &mapping.Mapping{LongURL: "https://c.com", ShortURL: "ccc111"}))
		_, err := cache.FindByShortURL(ctx, "ccc111")
		require.NoError(t, err)

		for range 3 {
			require.NoError(t, cache.IncrementVisits(ctx, "ccc111"))
		}

		got, err := cache.FindByShortURL(ctx, "ccc111")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.VisitCount)
	})

	t.Run("unknown codes are not cached", func(t *testing.T) {
		cache := store.NewRedisCacheRepository(store.NewMemoryStore(), client, time.Minute, zap.NewNop())

		_, err := cache.FindByShortURL(ctx, "absent")

		require.ErrorIs(t, err, mapping.ErrNotFound)
		assert.Zero(t, client.Exists(ctx, "mapping:absent").Val())
	})
}

func TestRateLimitRedisStoreIntegration(t *testing.T) {
	ctx := context.Background()
	client := testutil.Redis(t)

	s, err := store.NewRateLimitRedisStore(client)
	require.NoError(t, err)

	t.Run("counts requests per key", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			count, err := s.Record(ctx, "client-a", time.Minute)

			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		count, err := s.Record(ctx, "client-b", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("expired entries are pruned", func(t *testing.T) {
		_, _ = s.Record(ctx, "client-c", 50*time.Millisecond)
		_, _ = s.Record(ctx, "client-c", 50*time.Millisecond)

		time.Sleep(80 * time.Millisecond)

		count, err := s.Record(ctx, "client-c", 50*time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("keys expire with the window", func(t *testing.T) {
		_, err := s.Record(ctx, "client-d", time.Minute)
		require.NoError(t, err)

		ttl := client.TTL(ctx, "ratelimit:client-d").Val()
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Minute)
	})
}
