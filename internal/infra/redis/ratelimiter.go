package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
	keyPrefix                = "push:ratelimit"
)

// Fixed one-second window counter; the key expires with the window.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*PushRateLimiter)(nil)

// PushRateLimiter is a distributed per-platform, per-second limiter for
// push gateway calls shared by every dispatch worker.
type PushRateLimiter struct {
	client      goredis.Scripter
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPushRateLimiter(client goredis.Scripter, limitPerSec int) (*PushRateLimiter, error) {
	return newPushRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newPushRateLimiter(
	client goredis.Scripter,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*PushRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &PushRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *PushRateLimiter) Allow(ctx context.Context, platform domain.Platform) (bool, error) {
	if !platform.IsValid() {
		return false, fmt.Errorf("%w: unknown platform %q", domain.ErrValidation, platform)
	}

	key := fmt.Sprintf("%s:%s:%d", keyPrefix, platform, r.now().UTC().Unix())
	result, err := allowScript.Run(ctx, r.client, []string{key}, r.limitPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate push rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until a slot is free for platform or ctx is done.
func (r *PushRateLimiter) Wait(ctx context.Context, platform domain.Platform) error {
	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, platform)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
