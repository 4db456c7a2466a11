package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/url-mapping/internal/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	Healthy        = "healthy"
	Unhealthy      = "unhealthy"
)

const defaultTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewRedisChecker checks a Redis client.
func NewRedisChecker(client *redis.Client) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// NewMongoChecker checks a MongoDB client against the primary.
func NewMongoChecker(client *mongo.Client) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
}

// Handler pings every registered dependency concurrently.
type Handler struct {
	checkers map[string]Checker
	timeout  time.Duration
}

func NewHandler(checkers map[string]Checker) *Handler {
	return &Handler{checkers: checkers, timeout: defaultTimeout}
}

// Response is the body of GET /health.
type Response struct {
	Body struct {
		Status     string            `enum:"ok,degraded"     json:"status"`
		Components map[string]string `json:"components"`
	}
}

// Check reports "ok" only when every dependency answers within the timeout.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		components = make(map[string]string, len(h.checkers))
		g          errgroup.Group
	)

	for name, checker := range h.checkers {
		g.Go(func() error {
			state := Healthy
			if err := checker.Ping(ctx); err != nil {
				state = Unhealthy
			}

			mu.Lock()
			components[name] = state
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	resp := &Response{}
	resp.Body.Status = StatusOK
	resp.Body.Components = components

	for _, state := range components {
		if state != Healthy {
			resp.Body.Status = StatusDegraded

			break
		}
	}

	return resp, nil
}

// RegisterRoutes registers the health endpoint.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
