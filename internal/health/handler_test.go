package health_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/url-mapping/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	err   error
	delay time.Duration
}

func (m *mockChecker) Ping(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return m.err
}

func TestHandler_Check(t *testing.T) {
	t.Run("ok when every dependency is healthy", func(t *testing.T) {
		handler := health.NewHandler(map[string]health.Checker{
			"mongo": &mockChecker{},
			"redis": &mockChecker{},
		})

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Equal(t, map[string]string{"mongo": health.Healthy, "redis": health.Healthy}, resp.Body.Components)
	})

	t.Run("degraded when one dependency fails", func(t *testing.T) {
		handler := health.NewHandler(map[string]health.Checker{
			"mongo": &mockChecker{},
			"redis": &mockChecker{err: errors.New("connection refused")},
		})

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusDegraded, resp.Body.Status)
		assert.Equal(t, health.Healthy, resp.Body.Components["mongo"])
		assert.Equal(t, health.Unhealthy, resp.Body.Components["redis"])
	})

	t.Run("pings run concurrently", func(t *testing.T) {
		handler := health.NewHandler(map[string]health.Checker{
			"a": &mockChecker{delay: 200 * time.Millisecond},
			"b": &mockChecker{delay: 200 * time.Millisecond},
			"c": &mockChecker{delay: 200 * time.Millisecond},
		})

		start := time.Now()
		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("ok with no dependencies", func(t *testing.T) {
		resp, err := health.NewHandler(nil).Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Empty(t, resp.Body.Components)
	})
}

func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	assert.Error(t, health.NewRedisChecker(client).Ping(context.Background()))
}

func TestCheckerFunc(t *testing.T) {
	called := false
	checker := health.CheckerFunc(func(context.Context) error {
		called = true

		return nil
	})

	require.NoError(t, checker.Ping(context.Background()))
	assert.True(t, called)
}
