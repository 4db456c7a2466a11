package ratelimit

import (
	"context"
	"time"
)

// Store keeps the request timestamps for each rate limit key.
type Store interface {
	// Record adds a request under key and returns how many requests fall
	// inside the trailing window, the new one included.
	Record(ctx context.Context, key string, window time.Duration) (count int64, err error)
}
