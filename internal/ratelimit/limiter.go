package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrRateLimited = errors.New("rate_limited")

// Result reports one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a call for an identity inside a sliding
// window. Budgets are best-effort per instance unless a shared backend
// is configured.
type Limiter interface {
	Allow(ctx context.Context, identity string) (*Result, error)
}
