package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/bus"
	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/config"
	"github.com/stagepass/ticketing/internal/metrics"
	"github.com/stagepass/ticketing/internal/outbox"
	"github.com/stagepass/ticketing/internal/scheduler"
	"github.com/stagepass/ticketing/internal/storage/postgres"
	transporthttp "github.com/stagepass/ticketing/internal/transport/http"
	"github.com/stagepass/ticketing/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.LoadAPI(logger)
	metrics.Register()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	publisher := bus.NewPublisher(cfg.KafkaBrokers, cfg.ReleaseTopic, logger)
	defer func() { _ = publisher.Close() }()

	orderRepo := postgres.NewOrderRepository(pool)
	inventoryRepo := postgres.NewInventoryRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)
	clk := clock.NewSystem()

	// The scheduler fires into the order service and the order service
	// schedules through the scheduler; the handler closure breaks the
	// construction cycle.
	var orderSvc *app.OrderService
	sched := scheduler.New(
		scheduler.NewRedisStore(redisClient, "ticketing"),
		clk,
		func(ctx context.Context, key string, payload []byte) error {
			return orderSvc.HandleExpiration(ctx, key, payload)
		},
		logger,
		scheduler.WithPollInterval(cfg.SchedulerInterval),
	)
	orderSvc = app.NewOrderService(orderRepo, inventoryRepo, sched, outboxRepo, clk, logger,
		app.WithOrderTTL(cfg.OrderTTL))

	relay := outbox.NewRelay(outboxRepo, publisher, logger, outbox.WithInterval(cfg.OutboxInterval))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Run(stopCtx)
	go relay.Run(stopCtx)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: transporthttp.NewRouter(orderSvc, logger),
	}

	logger.Info("api listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
