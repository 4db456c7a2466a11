package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
)

// RateLimitRedisStore is a Redis implementation of ratelimit.Store that
// keeps one sorted set per key, scored by request time.
type RateLimitRedisStore struct {
	client *redis.Client
	prefix string
	member func() string
}

// NewRateLimitRedisStore creates a new Redis-backed rate limit store.
func NewRateLimitRedisStore(client *redis.Client) (*RateLimitRedisStore, error) {
	gen, err := nanoid.Standard(12)
	if err != nil {
		return nil, err
	}

	return &RateLimitRedisStore{
		client: client,
		prefix: "ratelimit:",
		member: gen,
	}, nil
}

func (s *RateLimitRedisStore) Record(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	redisKey := s.prefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

	var card *redis.IntCmd

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMicro()), Member: s.member()})
		card = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return card.Val(), nil
}
