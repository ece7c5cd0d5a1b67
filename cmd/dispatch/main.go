// Command dispatch runs a single dispatch pass and prints its summary as
// JSON. It is meant for cron or serverless invocation.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/broadcast-dispatch/internal/app"
	"github.com/kursadbilgin/broadcast-dispatch/internal/config"
	"github.com/kursadbilgin/broadcast-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

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

	if err := run(cfg, logger); err != nil {
		logger.Error("dispatch pass failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return err
	}
	defer postgresql.Close(db) //nolint:errcheck

	var limiterRedis goredis.Scripter
	rdb, err := app.NewLimiterRedis(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		limiterRedis = rdb
	}

	worker, err := app.NewDispatchWorker(cfg, db, limiterRedis, logger, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := worker.Run(ctx, service.TriggerCLI)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(summary)
}
