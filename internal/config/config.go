package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL         string `env:"RABBITMQ_URL,required=true"`
	RedisURL            string `env:"REDIS_URL,required=true"`
	PushGatewayURL      string `env:"PUSH_GATEWAY_URL,required=true"`
	PushGatewayKey      string `env:"PUSH_GATEWAY_KEY"`
	PushRateLimitPerSec int    `env:"PUSH_RATE_LIMIT_PER_SEC,default=0"`
	BatchConcurrency    int    `env:"BATCH_CONCURRENCY,default=10"`
	ClaimBatchSize      int    `env:"CLAIM_BATCH_SIZE,default=50"`
	DispatchIntervalRaw string `env:"DISPATCH_INTERVAL,default=1m"`
	PushTimeoutRaw      string `env:"PUSH_TIMEOUT,default=5s"`
	StaleClaimAfterRaw  string `env:"STALE_CLAIM_AFTER,default=15m"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`

	Timing Timing
}

// Timing holds the parsed duration settings.
type Timing struct {
	DispatchInterval time.Duration
	PushTimeout      time.Duration
	StaleClaimAfter  time.Duration
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) parse() error {
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{name: "DISPATCH_INTERVAL", raw: c.DispatchIntervalRaw, dst: &c.Timing.DispatchInterval},
		{name: "PUSH_TIMEOUT", raw: c.PushTimeoutRaw, dst: &c.Timing.PushTimeout},
		{name: "STALE_CLAIM_AFTER", raw: c.StaleClaimAfterRaw, dst: &c.Timing.StaleClaimAfter},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.raw)
		}
		*d.dst = parsed
	}

	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.ClaimBatchSize < 1 {
		return fmt.Errorf("CLAIM_BATCH_SIZE must be at least 1, got %d", c.ClaimBatchSize)
	}
	if c.PushRateLimitPerSec < 0 {
		return fmt.Errorf("PUSH_RATE_LIMIT_PER_SEC must not be negative, got %d", c.PushRateLimitPerSec)
	}
	return nil
}
