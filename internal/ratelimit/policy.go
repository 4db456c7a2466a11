package ratelimit

import "time"

// LimitConfig caps a scope at Max requests per Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// Policy maps every scope to the limits enforced on it. A scope may carry
// several limits, e.g. a burst window and a sustained window.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// PolicyBuilder assembles a Policy fluently.
type PolicyBuilder struct {
	limits map[Scope][]LimitConfig
}

// NewPolicyBuilder returns an empty builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{limits: make(map[Scope][]LimitConfig)}
}

// AddLimit appends a limit to scope.
func (b *PolicyBuilder) AddLimit(scope Scope, maxRequests int64, window time.Duration) *PolicyBuilder {
	b.limits[scope] = append(b.limits[scope], LimitConfig{Window: window, Max: maxRequests})

	return b
}

// Build returns the policy. The builder can keep being used afterwards
// without affecting the returned value.
func (b *PolicyBuilder) Build() *Policy {
	limits := make(map[Scope][]LimitConfig, len(b.limits))
	for scope, cfgs := range b.limits {
		limits[scope] = append([]LimitConfig(nil), cfgs...)
	}

	return &Policy{Limits: limits}
}

// DefaultPolicy is tuned for a link service: redirects are the hot path and
// get the most room, creating links is the most expensive operation.
func DefaultPolicy() *Policy {
	return NewPolicyBuilder().
		AddLimit(ScopeGlobal, 1000, time.Minute).
		AddLimit(ScopeRedirect, 600, time.Minute).
		AddLimit(ScopeRead, 300, time.Minute).
		AddLimit(ScopeWrite, 10, time.Second).
		AddLimit(ScopeWrite, 100, time.Hour).
		Build()
}
