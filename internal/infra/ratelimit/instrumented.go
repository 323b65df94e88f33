package ratelimit

import (
	"context"

	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/infra/metrics"
)

// Instrumented counts the decisions of the wrapped limiter per backend.
type Instrumented struct {
	backend string
	next    adapter.RateLimiter
}

var _ adapter.RateLimiter = (*Instrumented)(nil)

func Instrument(backend string, next adapter.RateLimiter) *Instrumented {
	return &Instrumented{backend: backend, next: next}
}

func (i *Instrumented) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := i.next.Allow(ctx, key)
	switch {
	case err != nil:
		metrics.IncRateLimit(i.backend, "error")
	case ok:
		metrics.IncRateLimit(i.backend, "allowed")
	default:
		metrics.IncRateLimit(i.backend, "rejected")
	}
	return ok, err
}
