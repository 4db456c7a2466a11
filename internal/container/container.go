// Package container wires the service together with samber/do. Each
// Package function registers lazy providers, so a process only connects to
// the backends it actually uses.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/url-mapping/internal/analytics"
	analyticsstore "github.com/serroba/url-mapping/internal/analytics/store"
	"github.com/serroba/url-mapping/internal/handlers"
	"github.com/serroba/url-mapping/internal/health"
	"github.com/serroba/url-mapping/internal/mapping"
	"github.com/serroba/url-mapping/internal/messaging"
	"github.com/serroba/url-mapping/internal/metrics"
	"github.com/serroba/url-mapping/internal/middleware"
	"github.com/serroba/url-mapping/internal/ratelimit"
	"github.com/serroba/url-mapping/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AnalyticsConsumerGroup is the Redis stream consumer group shared by
// analytics workers.
const AnalyticsConsumerGroup = "analytics"

const connectTimeout = 10 * time.Second

// RedisClient owns the shared Redis connection pool.
type RedisClient struct {
	*redis.Client
}

func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// MongoClient owns the MongoDB connection.
type MongoClient struct {
	*mongo.Client
}

func (c *MongoClient) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	return c.Disconnect(ctx)
}

// PostgresPool owns the analytics connection pool.
type PostgresPool struct {
	*pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

func MongoPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*MongoClient, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		client, err := store.NewMongoClient(ctx, opts.MongoURI)
		if err != nil {
			return nil, err
		}

		return &MongoClient{Client: client}, nil
	})
}

func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for the %s analytics sink", BackendPostgres)
		}

		if err := analyticsstore.Migrate(opts.PostgresDSN); err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
}

// RepositoryPackage provides the mapping store: memory, or MongoDB behind
// an optional Redis cache.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (mapping.Repository, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.Store == BackendMemory {
			return store.NewMemoryStore(), nil
		}

		if opts.Store != BackendMongo {
			return nil, fmt.Errorf("unknown store %q", opts.Store)
		}

		client, err := do.Invoke[*MongoClient](i)
		if err != nil {
			return nil, err
		}

		mongoStore := store.NewMongoStore(client.Database(opts.MongoDatabase).Collection(opts.MongoCollection))

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return nil, err
		}

		if !opts.cacheEnabled() {
			return mongoStore, nil
		}

		redisClient := do.MustInvoke[*RedisClient](i)
		m := do.MustInvoke[*metrics.Metrics](i)

		return store.NewRedisCacheRepository(
			mongoStore,
			redisClient.Client,
			opts.cacheTTL(),
			do.MustInvoke[*zap.Logger](i),
			store.WithBreakerStateHook(m.BreakerStateChanged),
			store.WithCachePrefix(opts.cachePrefix()),
		), nil
	})
}

func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*mapping.Service, error) {
		repo, err := do.Invoke[mapping.Repository](i)
		if err != nil {
			return nil, err
		}

		return mapping.NewService(repo, do.MustInvoke[*zap.Logger](i)), nil
	})
}

func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		opts := do.MustInvoke[*Options](i)

		var counters ratelimit.Store

		switch opts.RateLimit {
		case BackendMemory:
			counters = store.NewRateLimitMemoryStore()
		case BackendRedis:
			s, err := store.NewRateLimitRedisStore(do.MustInvoke[*RedisClient](i).Client)
			if err != nil {
				return nil, err
			}

			counters = s
		default:
			return nil, fmt.Errorf("unknown rate limit backend %q", opts.RateLimit)
		}

		return ratelimit.NewPolicyLimiter(counters, ratelimit.DefaultPolicy()), nil
	})
}

// EventsPackage provides the in-process channel used by the memory events
// transport. Publisher and subscriber share it.
func EventsPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		return gochannel.NewGoChannel(gochannel.Config{}, messaging.NewZapLoggerAdapter(logger)), nil
	})
}

func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Events {
		case BackendMemory:
			return messaging.NewPublisherGroup(do.MustInvoke[*gochannel.GoChannel](i)), nil
		case BackendRedis:
			pub, err := messaging.NewRedisPublisher(do.MustInvoke[*RedisClient](i).Client, logger)
			if err != nil {
				return nil, err
			}

			return messaging.NewPublisherGroup(pub), nil
		default:
			return nil, fmt.Errorf("unknown events transport %q", opts.Events)
		}
	})
}

// ConsumerGroupPackage provides the analytics consumers bound to the
// configured sink.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (analytics.Store, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.AnalyticsSink {
		case BackendNoop:
			return analyticsstore.NewNoop(do.MustInvoke[*zap.Logger](i)), nil
		case BackendPostgres:
			pool, err := do.Invoke[*PostgresPool](i)
			if err != nil {
				return nil, err
			}

			return analyticsstore.NewPostgres(pool.Pool), nil
		default:
			return nil, fmt.Errorf("unknown analytics sink %q", opts.AnalyticsSink)
		}
	})

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		sink, err := do.Invoke[analytics.Store](i)
		if err != nil {
			return nil, err
		}

		var subscriber message.Subscriber

		switch opts.Events {
		case BackendMemory:
			subscriber = do.MustInvoke[*gochannel.GoChannel](i)
		case BackendRedis:
			subscriber, err = messaging.NewRedisSubscriber(
				do.MustInvoke[*RedisClient](i).Client, AnalyticsConsumerGroup, logger,
			)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown events transport %q", opts.Events)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		analytics.RegisterConsumers(group, subscriber, sink, logger)

		return group, nil
	})
}

// HTTPPackage provides the chi router and the huma API mounted on it.
// Invoking huma.API registers every route.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		opts := do.MustInvoke[*Options](i)

		router := chi.NewMux()
		router.Use(chimiddleware.RequestID, chimiddleware.Recoverer, middleware.CORS(opts.corsOrigins()))
		router.Handle("/metrics", do.MustInvoke[*metrics.Metrics](i).Handler())

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		service, err := do.Invoke[*mapping.Service](i)
		if err != nil {
			return nil, err
		}

		limiter, err := do.Invoke[*ratelimit.PolicyLimiter](i)
		if err != nil {
			return nil, err
		}

		publishers, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		var handlerOpts []handlers.HandlerOption

		if opts.AnalyticsSink == BackendPostgres {
			pool, err := do.Invoke[*PostgresPool](i)
			if err != nil {
				return nil, err
			}

			handlerOpts = append(handlerOpts, handlers.WithVisitReporter(analyticsstore.NewPostgres(pool.Pool)))
		}

		api := humachi.New(router, huma.DefaultConfig("URL Mapping", "1.0.0"))
		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.PolicyRateLimiter(api, limiter, ratelimit.NewOperationScopeResolver(), logger),
		)

		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i, opts)))

		handler := handlers.NewMappingHandler(
			service,
			opts.BaseURL,
			analytics.NewPublishers(publishers.Publisher()),
			do.MustInvoke[*metrics.Metrics](i),
			logger,
			handlerOpts...,
		)
		handlers.RegisterRoutes(api, handler)

		return api, nil
	})
}

func healthCheckers(i *do.Injector, opts *Options) map[string]health.Checker {
	checkers := map[string]health.Checker{}

	if opts.Store == BackendMongo {
		checkers["mongo"] = health.NewMongoChecker(do.MustInvoke[*MongoClient](i).Client)
	}

	if opts.needsRedis() {
		checkers["redis"] = health.NewRedisChecker(do.MustInvoke[*RedisClient](i).Client)
	}

	return checkers
}
