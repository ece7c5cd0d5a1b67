package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hashicorp/go-multierror"
	"github.com/kursadbilgin/broadcast-dispatch/internal/app"
	"github.com/kursadbilgin/broadcast-dispatch/internal/config"
	"github.com/kursadbilgin/broadcast-dispatch/internal/handler"
	"github.com/kursadbilgin/broadcast-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/broadcast-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/broadcast-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/queue"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"github.com/kursadbilgin/broadcast-dispatch/internal/service"
	"github.com/kursadbilgin/broadcast-dispatch/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

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
	defer postgresql.Close(db) //nolint:errcheck

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	publisher := queue.NewRabbitMQPublisher(mq)

	metrics := observability.NewMetrics()

	worker, err := app.NewDispatchWorker(cfg, db, rdb, logger, metrics)
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}

	jobs, err := service.NewJobService(repository.NewGormJobRepo(db), logger.Named("jobs"))
	if err != nil {
		logger.Fatal("job service initialization failed", zap.Error(err))
	}

	triggers, err := service.NewTriggerService(publisher)
	if err != nil {
		logger.Fatal("trigger service initialization failed", zap.Error(err))
	}
	triggers.SetMetrics(metrics)

	server := fiber.New(fiber.Config{
		AppName:               "broadcast-dispatch",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	server.Use(recover.New())
	server.Use(metrics.HTTPMiddleware())
	server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(server, handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb))
	if err := handler.RegisterJobRoutes(server, jobs); err != nil {
		logger.Fatal("job routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterDispatchRoutes(server, worker, triggers); err != nil {
		logger.Fatal("dispatch routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("broadcast-dispatch api started", zap.Int("port", cfg.APIPort))

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}

	var result *multierror.Error
	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if err := publisher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("rabbitmq close: %w", err))
	}
	if err := rdb.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("redis close: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
		return
	}
	logger.Info("broadcast-dispatch api stopped")
}
