package ratelimit

import (
	"context"
	"fmt"
)

// LimitExceeded describes the limit a request ran into.
type LimitExceeded struct {
	Scope  Scope
	Config LimitConfig
	Count  int64
}

// PolicyLimiter checks requests against a Policy using a sliding window
// per client, scope and window length.
type PolicyLimiter struct {
	store  Store
	policy *Policy
}

// NewPolicyLimiter creates a limiter enforcing policy over store.
func NewPolicyLimiter(store Store, policy *Policy) *PolicyLimiter {
	return &PolicyLimiter{
		store:  store,
		policy: policy,
	}
}

// Allow records the request under every limit of every scope and reports
// the first limit that is exceeded. Scopes without limits are ignored.
func (l *PolicyLimiter) Allow(ctx context.Context, clientKey string, scopes []Scope) (bool, *LimitExceeded, error) {
	for _, scope := range scopes {
		for _, limit := range l.policy.Limits[scope] {
			exceeded, err := l.check(ctx, fmt.Sprintf("%s:%s:%d", clientKey, scope, limit.Window.Milliseconds()), scope, limit)
			if err != nil || exceeded != nil {
				return false, exceeded, err
			}
		}
	}

	return true, nil, nil
}

// AllowCustom enforces endpoint specific limits. Counters are keyed by the
// route template so every path matching it shares the same budget.
func (l *PolicyLimiter) AllowCustom(
	ctx context.Context, clientKey, route string, limits []LimitConfig,
) (bool, *LimitExceeded, error) {
	for _, limit := range limits {
		key := fmt.Sprintf("%s:custom:%s:%d", clientKey, route, limit.Window.Milliseconds())

		exceeded, err := l.check(ctx, key, Scope("custom"), limit)
		if err != nil || exceeded != nil {
			return false, exceeded, err
		}
	}

	return true, nil, nil
}

func (l *PolicyLimiter) check(ctx context.Context, key string, scope Scope, limit LimitConfig) (*LimitExceeded, error) {
	count, err := l.store.Record(ctx, key, limit.Window)
	if err != nil {
		return nil, err
	}

	if count > limit.Max {
		return &LimitExceeded{Scope: scope, Config: limit, Count: count}, nil
	}

	return nil, nil
}
