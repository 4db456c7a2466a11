package container

import (
	"strings"
	"time"

	"github.com/serroba/url-mapping/internal/store"
)

// Backend names accepted by the store, rate-limit and events options.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNoop     = "noop"
)

type Options struct {
	Port            int    `default:"8888"                      doc:"Port to listen on"                                              short:"p"`
	BaseURL         string `default:""                          doc:"Public base URL of short links, derived per request when empty"`
	Store           string `default:"mongo"                     doc:"Mapping store: mongo or memory"`
	MongoURI        string `default:"mongodb://localhost:27017" doc:"MongoDB connection URI"`
	MongoDatabase   string `default:"urlmapping"                doc:"MongoDB database"`
	MongoCollection string `default:"UrlMapping"                doc:"MongoDB collection holding the mappings"`
	RedisAddr       string `default:"localhost:6379"            doc:"Redis server address"                                           short:"r"`
	CacheTTL        int    `default:"3600"                      doc:"Mapping cache TTL in seconds, 0 disables the cache"`
	CachePrefix     string `default:"mapping:"                  doc:"Prefix of every Redis key the mapping cache writes"`
	RateLimit       string `default:"redis"                     doc:"Rate limit counters: redis or memory"`
	Events          string `default:"redis"                     doc:"Analytics event transport: redis or memory"`
	CORSOrigins     string `default:"http://localhost:4200"     doc:"Comma-separated origins allowed by CORS"`
	LogFormat       string `default:"console"                   doc:"Log format: console or json"`
	AnalyticsSink   string `default:"noop"                      doc:"Analytics sink: noop or postgres"`
	PostgresDSN     string `default:""                          doc:"PostgreSQL DSN of the analytics sink"`
}

// MemoryOptions runs everything in process, with no external services.
func MemoryOptions() *Options {
	return &Options{
		Port:          8888,
		Store:         BackendMemory,
		RateLimit:     BackendMemory,
		Events:        BackendMemory,
		AnalyticsSink: BackendNoop,
		LogFormat:     "console",
	}
}

func (o *Options) cacheTTL() time.Duration {
	return time.Duration(o.CacheTTL) * time.Second
}

func (o *Options) cachePrefix() string {
	if o.CachePrefix == "" {
		return store.DefaultCachePrefix
	}

	return o.CachePrefix
}

func (o *Options) cacheEnabled() bool {
	return o.Store == BackendMongo && o.CacheTTL > 0
}

func (o *Options) needsRedis() bool {
	return o.cacheEnabled() || o.RateLimit == BackendRedis || o.Events == BackendRedis
}

func (o *Options) corsOrigins() []string {
	var origins []string

	for _, origin := range strings.Split(o.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return origins
}
