package adapter

import "context"

// RateLimiter admits or rejects an action for a key. Implementations carry
// their own limit and window; the state may live in-process or in a shared store.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
