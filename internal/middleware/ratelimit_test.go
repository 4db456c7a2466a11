package middleware_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/url-mapping/internal/middleware"
	"github.com/serroba/url-mapping/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	testRemoteAddr = "192.168.1.1:12345"
	testUserAgent  = "TestAgent/1.0"
)

var errMultipartNotSupported = errors.New("multipart not supported in mock")

func newTestAPI() huma.API {
	return humachi.New(chi.NewMux(), huma.DefaultConfig("Test", "1.0.0"))
}

// mockHumaContext implements huma.Context for testing.
type mockHumaContext struct {
	headers     map[string]string
	respHeaders map[string]string
	remoteAddr  string
	written     []byte
	statusCode  int
	method      string
	operation   *huma.Operation
}

func newMockHumaContext() *mockHumaContext {
	return &mockHumaContext{
		headers:     map[string]string{"User-Agent": testUserAgent},
		respHeaders: make(map[string]string),
		remoteAddr:  testRemoteAddr,
		method:      "GET",
	}
}

func (m *mockHumaContext) Operation() *huma.Operation            { return m.operation }
func (m *mockHumaContext) Context() context.Context              { return context.Background() }
func (m *mockHumaContext) TLS() *tls.ConnectionState             { return nil }
func (m *mockHumaContext) Version() huma.ProtoVersion            { return huma.ProtoVersion{} }
func (m *mockHumaContext) Method() string                        { return m.method }
func (m *mockHumaContext) Host() string                          { return "short.example.com" }
func (m *mockHumaContext) RemoteAddr() string                    { return m.remoteAddr }
func (m *mockHumaContext) URL() url.URL                          { return url.URL{} }
func (m *mockHumaContext) Param(_ string) string                 { return "" }
func (m *mockHumaContext) Query(_ string) string                 { return "" }
func (m *mockHumaContext) Header(name string) string             { return m.headers[name] }
func (m *mockHumaContext) EachHeader(_ func(name, value string)) {}
func (m *mockHumaContext) BodyReader() io.Reader                 { return nil }
func (m *mockHumaContext) GetMultipartForm() (*multipart.Form, error) {
	return nil, errMultipartNotSupported
}
func (m *mockHumaContext) SetReadDeadline(_ time.Time) error { return nil }
func (m *mockHumaContext) SetStatus(code int)                { m.statusCode = code }
func (m *mockHumaContext) Status() int                       { return m.statusCode }
func (m *mockHumaContext) AppendHeader(name, value string)   { m.respHeaders[name] = value }
func (m *mockHumaContext) SetHeader(name, value string)      { m.respHeaders[name] = value }
func (m *mockHumaContext) BodyWriter() io.Writer             { return &mockBodyWriter{ctx: m} }

type mockBodyWriter struct {
	ctx *mockHumaContext
}

func (w *mockBodyWriter) Write(p []byte) (n int, err error) {
	w.ctx.written = append(w.ctx.written, p...)

	return len(p), nil
}

// mockPolicyStore counts per key and records every key it sees.
type mockPolicyStore struct {
	counts map[string]int64
	keys   []string
	err    error
}

func newMockPolicyStore() *mockPolicyStore {
	return &mockPolicyStore{counts: make(map[string]int64)}
}

func (m *mockPolicyStore) Record(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}

	m.keys = append(m.keys, key)
	m.counts[key]++

	return m.counts[key], nil
}

type staticResolver []ratelimit.Scope

func (s staticResolver) Resolve(_ huma.Context) []ratelimit.Scope { return s }

type fixture struct {
	store *mockPolicyStore
	mw    func(huma.Context, func(huma.Context))
}

func newFixture(policy *ratelimit.Policy, scopes ...ratelimit.Scope) *fixture {
	store := newMockPolicyStore()
	limiter := ratelimit.NewPolicyLimiter(store, policy)

	return &fixture{
		store: store,
		mw:    middleware.PolicyRateLimiter(newTestAPI(), limiter, staticResolver(scopes), zap.NewNop()),
	}
}

// run sends ctx through the middleware and reports whether next was called.
func (f *fixture) run(ctx *mockHumaContext) bool {
	called := false

	f.mw(ctx, func(_ huma.Context) { called = true })

	return called
}

func TestPolicyRateLimiter(t *testing.T) {
	t.Run("allows request under the limit", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 10, time.Minute).Build(),
			ratelimit.ScopeGlobal)

		assert.True(t, f.run(newMockHumaContext()))
	})

	t.Run("returns 429 with retry headers when exceeded", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeWrite, 1, time.Minute).Build(),
			ratelimit.ScopeWrite)

		assert.True(t, f.run(newMockHumaContext()))

		ctx := newMockHumaContext()

		assert.False(t, f.run(ctx))
		assert.Equal(t, 429, ctx.statusCode)
		assert.Contains(t, string(ctx.written), "write scope")
		assert.Contains(t, string(ctx.written), "2/1")
		assert.Equal(t, "60", ctx.respHeaders["Retry-After"])
		assert.Equal(t, "1", ctx.respHeaders["X-RateLimit-Limit"])
	})

	t.Run("separate clients get separate budgets", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build(),
			ratelimit.ScopeGlobal)

		assert.True(t, f.run(newMockHumaContext()))

		other := newMockHumaContext()
		other.headers["User-Agent"] = "OtherAgent/2.0"
		assert.True(t, f.run(other), "different user agent is a different client")

		proxied := newMockHumaContext()
		proxied.remoteAddr = "10.0.0.1:1"
		proxied.headers["X-Forwarded-For"] = "203.0.113.195, 70.41.3.18"
		assert.True(t, f.run(proxied), "forwarded ip is a different client")

		sameClient := newMockHumaContext()
		sameClient.remoteAddr = "10.0.0.2:2"
		sameClient.headers["X-Forwarded-For"] = "203.0.113.195"
		assert.False(t, f.run(sameClient), "first forwarded ip identifies the client")
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		f := newFixture(ratelimit.DefaultPolicy(), ratelimit.ScopeGlobal)
		f.store.err = errors.New("store error")

		ctx := newMockHumaContext()

		assert.False(t, f.run(ctx))
		assert.Equal(t, 500, ctx.statusCode)
	})

	t.Run("skips limiting when disabled via metadata", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build(),
			ratelimit.ScopeGlobal)
		op := &huma.Operation{
			Path:     "/health",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true}},
		}

		for range 3 {
			ctx := newMockHumaContext()
			ctx.operation = op
			assert.True(t, f.run(ctx))
		}

		assert.Empty(t, f.store.keys, "disabled endpoints record nothing")
	})

	t.Run("custom limits replace the policy", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 100, time.Minute).Build(),
			ratelimit.ScopeGlobal)
		op := &huma.Operation{
			Path: "/custom",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
			}},
		}

		for i := range 2 {
			ctx := newMockHumaContext()
			ctx.operation = op
			assert.True(t, f.run(ctx), "request %d should be allowed", i+1)
		}

		ctx := newMockHumaContext()
		ctx.operation = op

		assert.False(t, f.run(ctx))
		assert.Equal(t, 429, ctx.statusCode)

		for _, key := range f.store.keys {
			assert.Contains(t, key, ":custom:/custom:")
		}
	})

	t.Run("custom limit store error returns 500", func(t *testing.T) {
		f := newFixture(ratelimit.NewPolicyBuilder().Build())
		f.store.err = errors.New("store error")

		ctx := newMockHumaContext()
		ctx.operation = &huma.Operation{
			Path: "/custom-error",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 10}},
			}},
		}

		assert.False(t, f.run(ctx))
		assert.Equal(t, 500, ctx.statusCode)
	})
}
