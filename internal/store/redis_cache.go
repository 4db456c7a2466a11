package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/url-mapping/internal/mapping"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultCachePrefix namespaces every key the cache writes.
const DefaultCachePrefix = "mapping:"

var errCacheMiss = errors.New("cache miss")

// CacheOption configures a RedisCacheRepository.
type CacheOption func(*RedisCacheRepository)

// WithBreakerStateHook registers a callback invoked whenever the cache
// circuit breaker changes state.
func WithBreakerStateHook(hook func(from, to gobreaker.State)) CacheOption {
	return func(r *RedisCacheRepository) {
		r.onStateChange = hook
	}
}

// WithCachePrefix overrides the key prefix used for cached mappings and the
// long URL index.
func WithCachePrefix(prefix string) CacheOption {
	return func(r *RedisCacheRepository) {
		r.prefix = prefix
	}
}

// RedisCacheRepository wraps a Repository with Redis caching for reads.
// Every Redis call goes through a circuit breaker; when Redis misbehaves the
// decorator serves straight from the underlying store.
type RedisCacheRepository struct {
	store         mapping.Repository
	client        *redis.Client
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
	prefix        string
	ttl           time.Duration
	onStateChange func(from, to gobreaker.State)
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store mapping.Repository, client *redis.Client, ttl time.Duration, logger *zap.Logger, opts ...CacheOption,
) *RedisCacheRepository {
	r := &RedisCacheRepository{
		store:  store,
		client: client,
		logger: logger,
		prefix: DefaultCachePrefix,
		ttl:    ttl,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			if r.onStateChange != nil {
				r.onStateChange(from, to)
			}
		},
	})

	return r
}

// cacheIfAbsentScript writes the mapping hash only when the key does not
// exist yet. ARGV[1] is the TTL in milliseconds, the rest are field/value
// pairs.
var cacheIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
if tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`)

// incrementIfCachedScript bumps the cached visit count without creating a
// partial hash for codes that are not cached.
var incrementIfCachedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('HINCRBY', KEYS[1], 'visit_count', 1)
end
return 0
`)

// Create stores a mapping in the underlying store and indexes its long URL.
// The short code entry is only filled from FindByShortURL, so a code shared
// by several long URLs always caches the store's first match.
func (r *RedisCacheRepository) Create(ctx context.Context, m *mapping.Mapping) error {
	if err := r.store.Create(ctx, m); err != nil {
		return err
	}

	r.indexLongURL(ctx, m)

	return nil
}

// FindByShortURL checks the cache first and falls back to the store.
func (r *RedisCacheRepository) FindByShortURL(ctx context.Context, code mapping.ShortCode) (*mapping.Mapping, error) {
	if m, err := r.getFromCache(ctx, code); err == nil {
		return m, nil
	}

	m, err := r.store.FindByShortURL(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cacheMapping(ctx, m)

	return m, nil
}

// FindByLongURL resolves the long URL to a code through the index, then
// serves the cached mapping if it belongs to that long URL.
func (r *RedisCacheRepository) FindByLongURL(ctx context.Context, longURL string) (*mapping.Mapping, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		code, err := r.client.Get(ctx, r.longURLKey(longURL)).Result()
		if errors.Is(err, redis.Nil) {
			return "", errCacheMiss
		}

		return code, err
	})
	if err == nil {
		m, err := r.getFromCache(ctx, mapping.ShortCode(res.(string)))
		if err == nil && m.LongURL == longURL {
			return m, nil
		}
	}

	m, err := r.store.FindByLongURL(ctx, longURL)
	if err != nil {
		return nil, err
	}

	r.indexLongURL(ctx, m)

	return m, nil
}

// IncrementVisits updates the store, then the cached count if the code is
// cached.
func (r *RedisCacheRepository) IncrementVisits(ctx context.Context, code mapping.ShortCode) error {
	if err := r.store.IncrementVisits(ctx, code); err != nil {
		return err
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return incrementIfCachedScript.Run(ctx, r.client, []string{r.shortURLKey(code)}).Result()
	})
	if err != nil {
		r.logger.Warn("failed to update cached visit count", zap.String("code", string(code)), zap.Error(err))
	}

	return nil
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code mapping.ShortCode) (*mapping.Mapping, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		result, err := r.client.HGetAll(ctx, r.shortURLKey(code)).Result()
		if err != nil {
			return nil, err
		}

		if len(result) == 0 {
			return nil, errCacheMiss
		}

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	result := res.(map[string]string)

	m := &mapping.Mapping{
		ID:        result["id"],
		LongURL:   result["long_url"],
		ShortURL:  mapping.ShortCode(result["short_url"]),
		CreatedBy: result["created_by"],
	}

	if n, err := strconv.ParseInt(result["visit_count"], 10, 64); err == nil {
		m.VisitCount = n
	}

	if nanos, err := strconv.ParseInt(result["created_at"], 10, 64); err == nil && nanos > 0 {
		m.CreatedAt = time.Unix(0, nanos).UTC()
	}

	return m, nil
}

// cacheMapping stores m under its short code unless an entry is already
// there. Only store results for FindByShortURL may be passed in.
func (r *RedisCacheRepository) cacheMapping(ctx context.Context, m *mapping.Mapping) {
	var createdAt int64
	if !m.CreatedAt.IsZero() {
		createdAt = m.CreatedAt.UnixNano()
	}

	args := []interface{}{
		r.ttl.Milliseconds(),
		"id", m.ID,
		"long_url", m.LongURL,
		"short_url", string(m.ShortURL),
		"visit_count", m.VisitCount,
		"created_by", m.CreatedBy,
		"created_at", createdAt,
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return cacheIfAbsentScript.Run(ctx, r.client, []string{r.shortURLKey(m.ShortURL)}, args...).Result()
	})
	if err != nil {
		r.logger.Debug("failed to cache mapping", zap.String("code", string(m.ShortURL)), zap.Error(err))
	}
}

func (r *RedisCacheRepository) indexLongURL(ctx context.Context, m *mapping.Mapping) {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.SetNX(ctx, r.longURLKey(m.LongURL), string(m.ShortURL), r.ttl).Err()
	})
	if err != nil {
		r.logger.Debug("failed to index long url", zap.String("code", string(m.ShortURL)), zap.Error(err))
	}
}

func (r *RedisCacheRepository) shortURLKey(code mapping.ShortCode) string {
	return r.prefix + string(code)
}

// longURLKey hashes the long URL so arbitrary lengths fit in a key.
func (r *RedisCacheRepository) longURLKey(longURL string) string {
	sum := sha256.Sum256([]byte(longURL))

	return r.prefix + "long:" + hex.EncodeToString(sum[:])
}

// Compile-time check.
var _ mapping.Repository = (*RedisCacheRepository)(nil)
