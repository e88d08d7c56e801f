package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	httpAdapter "github.com/tillworks/opsledger/internal/adapter/http"
	"github.com/tillworks/opsledger/internal/adapter/http/handler"
	postgresRepo "github.com/tillworks/opsledger/internal/adapter/repository/postgres"
	redisRepo "github.com/tillworks/opsledger/internal/adapter/repository/redis"
	"github.com/tillworks/opsledger/internal/infrastructure/config"
	"github.com/tillworks/opsledger/internal/infrastructure/eventpublisher"
	"github.com/tillworks/opsledger/internal/infrastructure/logger"
	"github.com/tillworks/opsledger/internal/infrastructure/metrics"
	"github.com/tillworks/opsledger/internal/infrastructure/postgres"
	"github.com/tillworks/opsledger/internal/infrastructure/redis"
	"github.com/tillworks/opsledger/internal/infrastructure/runtime"
	"github.com/tillworks/opsledger/internal/infrastructure/sweeper"
	"github.com/tillworks/opsledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	log.Logger = appLogger

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns, cfg.DatabaseTimeout)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	appLogger.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	appLogger.Info().Msg("connected to redis")

	m := metrics.New()

	dispatcher := runtime.NewDispatcher(appLogger,
		runtime.WithInboxSize(cfg.RuntimeInboxSize),
		runtime.WithIdleTimeout(cfg.RuntimeIdleTimeout),
		runtime.WithMetrics(m),
	)
	defer dispatcher.Close()

	txManager := postgresRepo.NewTxManager(pool)
	snapshotStore := postgresRepo.NewSnapshotRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	dedupeStore := redisRepo.NewDedupeStore(redisClient)
	retrier := postgresRepo.NewRetrier(appLogger)
	idGen := postgresRepo.NewULIDGenerator()

	engine := usecase.NewLedgerEngine(idGen)
	giftCardUC := usecase.NewGiftCardUseCase(dispatcher, txManager, snapshotStore, outboxRepo, engine, idGen, retrier, m)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publisher: eventpublisher.NewDedupePublisher(
			eventpublisher.NewLogPublisher(appLogger),
			dedupeStore,
			cfg.DedupeTTL,
			appLogger,
		),
		Logger:    appLogger,
		Metrics:   m,
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxPollInterval,
		Retention: cfg.OutboxRetention,
	})
	go func() {
		if err := publisher.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			appLogger.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	cardSweeper := sweeper.NewCardSweeper(sweeper.Config{
		Index:  snapshotStore,
		Cards:  giftCardUC,
		Logger: appLogger,
	})
	go func() {
		if err := cardSweeper.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			appLogger.Error().Err(err).Msg("card sweeper stopped")
		}
	}()

	healthHandler := handler.NewHealthHandler(pool, redisClient)
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		HealthHandler: healthHandler,
		Logger:        appLogger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		appLogger.Info().Str("port", cfg.HTTPPort).Msg("starting ops server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down...")

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("ops server forced to shutdown")
	}

	// Drain in-flight entity commands before the pool closes.
	dispatcher.Close()

	appLogger.Info().Msg("server stopped")
}
