package middleware

import (
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-mapping/internal/handlers"
)

// RequestMeta stores client and origin details of the request in its context.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := handlers.RequestMeta{
			ClientIP:  clientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
			Referrer:  ctx.Header("Referer"),
			Scheme:    requestScheme(ctx),
			Host:      requestHost(ctx),
		}

		next(huma.WithContext(ctx, handlers.ContextWithRequestMeta(ctx.Context(), meta)))
	}
}

// clientIP prefers proxy headers over the socket address.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	addr := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}

func requestScheme(ctx huma.Context) string {
	if proto := ctx.Header("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")

		return strings.ToLower(strings.TrimSpace(first))
	}

	if ctx.TLS() != nil {
		return "https"
	}

	return "http"
}

func requestHost(ctx huma.Context) string {
	if host := ctx.Header("X-Forwarded-Host"); host != "" {
		first, _, _ := strings.Cut(host, ",")

		return strings.TrimSpace(first)
	}

	return ctx.Host()
}
