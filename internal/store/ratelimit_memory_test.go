package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newClockedRateLimitStore() (*RateLimitMemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewRateLimitMemoryStore()
	s.now = clock.Now

	return s, clock
}

func TestRateLimitMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("counts requests per key", func(t *testing.T) {
		s, _ := newClockedRateLimitStore()

		for i := int64(1); i <= 3; i++ {
			count, err := s.Record(ctx, "key1", time.Minute)

			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		count, err := s.Record(ctx, "key2", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "key2 should have its own counter")
	})

	t.Run("window slides", func(t *testing.T) {
		s, clock := newClockedRateLimitStore()

		_, _ = s.Record(ctx, "key1", time.Minute)
		clock.Advance(30 * time.Second)
		_, _ = s.Record(ctx, "key1", time.Minute)
		clock.Advance(31 * time.Second)

		count, err := s.Record(ctx, "key1", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(2), count, "only the first request left the window")
	})

	t.Run("request exactly at the cutoff has expired", func(t *testing.T) {
		s, clock := newClockedRateLimitStore()

		_, _ = s.Record(ctx, "key1", time.Minute)
		clock.Advance(time.Minute)

		count, err := s.Record(ctx, "key1", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		s, _ := newClockedRateLimitStore()

		var wg sync.WaitGroup

		for range 20 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, _ = s.Record(ctx, "shared", time.Minute)
			}()
		}

		wg.Wait()

		count, err := s.Record(ctx, "shared", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(21), count)
	})
}
