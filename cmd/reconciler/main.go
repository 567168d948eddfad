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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/bus"
	"github.com/stagepass/ticketing/internal/config"
	"github.com/stagepass/ticketing/internal/metrics"
	"github.com/stagepass/ticketing/internal/reconciler"
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

	cfg := config.LoadReconciler(logger)
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

	rec := reconciler.New(postgres.NewReleaseRepository(pool), logger)
	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.ReleaseTopic, cfg.ConsumerGroup, rec.HandleRelease, logger)
	defer func() { _ = consumer.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", transporthttp.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Run(stopCtx)
	}()

	logger.Info("reconciler listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case err := <-consumerErr:
		if err != nil {
			logger.Error("consumer error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("reconciler stopped")
}
