package app

import (
	"fmt"

	"github.com/kursadbilgin/broadcast-dispatch/internal/config"
	infraredis "github.com/kursadbilgin/broadcast-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/provider"
	"github.com/kursadbilgin/broadcast-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"github.com/kursadbilgin/broadcast-dispatch/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewDispatchWorker wires the dispatch worker shared by every entrypoint.
func NewDispatchWorker(
	cfg *config.Config,
	db *gorm.DB,
	rdb goredis.Scripter,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*service.DispatchWorker, error) {
	gateway, err := provider.NewHTTPGateway(cfg.PushGatewayURL, cfg.PushGatewayKey)
	if err != nil {
		return nil, fmt.Errorf("push gateway init failed: %w", err)
	}

	limiter, err := NewPushRateLimiter(cfg, rdb)
	if err != nil {
		return nil, err
	}

	fanout, err := service.NewPushFanout(
		repository.NewGormDeviceRepo(db),
		gateway,
		limiter,
		cfg.BatchConcurrency,
		cfg.Timing.PushTimeout,
		logger.Named("push"),
	)
	if err != nil {
		return nil, err
	}
	fanout.SetMetrics(metrics)

	worker, err := service.NewDispatchWorker(
		repository.NewGormJobRepo(db),
		repository.NewGormInboxRepo(db),
		repository.NewGormUserRepo(db),
		repository.NewGormPreferenceRepo(db),
		fanout,
		service.DispatchConfig{
			ClaimBatchSize:  cfg.ClaimBatchSize,
			StaleClaimAfter: cfg.Timing.StaleClaimAfter,
		},
		logger.Named("dispatch"),
	)
	if err != nil {
		return nil, err
	}
	worker.SetMetrics(metrics)

	return worker, nil
}

// NewPushRateLimiter returns the Redis limiter when a per-second limit is
// configured and an unlimited one otherwise.
func NewPushRateLimiter(cfg *config.Config, rdb goredis.Scripter) (ratelimit.RateLimiter, error) {
	if cfg.PushRateLimitPerSec <= 0 {
		return ratelimit.Unlimited{}, nil
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required when PUSH_RATE_LIMIT_PER_SEC is set")
	}

	limiter, err := infraredis.NewPushRateLimiter(rdb, cfg.PushRateLimitPerSec)
	if err != nil {
		return nil, fmt.Errorf("push rate limiter init failed: %w", err)
	}
	return limiter, nil
}

// NewLimiterRedis connects to Redis only when push rate limiting is enabled
// and returns a nil client otherwise.
func NewLimiterRedis(cfg *config.Config) (*goredis.Client, error) {
	if cfg.PushRateLimitPerSec <= 0 {
		return nil, nil
	}
	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}
	return rdb, nil
}
