package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/kursadbilgin/broadcast-dispatch/internal/app"
	"github.com/kursadbilgin/broadcast-dispatch/internal/config"
	"github.com/kursadbilgin/broadcast-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/queue"
	"github.com/kursadbilgin/broadcast-dispatch/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const triggerPrefetch = 1

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	var limiterRedis goredis.Scripter
	rdb, err := app.NewLimiterRedis(cfg)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	if rdb != nil {
		limiterRedis = rdb
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	consumer := queue.NewRabbitMQConsumer(mq, triggerPrefetch, logger.Named("trigger"))

	worker, err := app.NewDispatchWorker(cfg, db, limiterRedis, logger, observability.NewMetrics())
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(worker, cfg.Timing.DispatchInterval, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("broadcast-dispatch worker started",
		zap.Duration("interval", cfg.Timing.DispatchInterval),
		zap.Int("batchConcurrency", cfg.BatchConcurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		return consumer.Consume(gctx, service.TriggerHandler(worker, logger.Named("trigger")))
	})

	var result *multierror.Error
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := consumer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("rabbitmq close: %w", err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := postgresql.Close(db); err != nil {
		result = multierror.Append(result, fmt.Errorf("postgres close: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Error("worker stopped with errors", zap.Error(err))
		return
	}
	logger.Info("broadcast-dispatch worker stopped")
}
