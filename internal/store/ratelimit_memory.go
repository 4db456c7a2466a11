package store

import (
	"context"
	"sync"
	"time"
)

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	// Timestamps are appended in order, so everything before the first
	// one inside the window has expired.
	timestamps := s.requests[key]
	start := 0

	for start < len(timestamps) && !timestamps[start].After(cutoff) {
		start++
	}

	valid := append(timestamps[start:len(timestamps):len(timestamps)], now)
	s.requests[key] = valid

	return int64(len(valid)), nil
}
