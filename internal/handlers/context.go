package handlers

import "context"

type requestMetaKey struct{}

// RequestMeta holds per-request data the handlers need beyond the body:
// client details for analytics and the scheme and host used to build
// absolute short links.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
	Scheme    string
	Host      string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}
