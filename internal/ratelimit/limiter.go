package ratelimit

import (
	"context"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
)

// RateLimiter caps push gateway calls per platform across all workers.
type RateLimiter interface {
	Allow(ctx context.Context, platform domain.Platform) (bool, error)
	Wait(ctx context.Context, platform domain.Platform) error
}

// Unlimited never throttles. Used when no per-second limit is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, domain.Platform) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ domain.Platform) error {
	return ctx.Err()
}
