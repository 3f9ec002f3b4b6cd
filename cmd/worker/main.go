package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"scanhub/internal/cache"
	"scanhub/internal/config"
	"scanhub/internal/database"
	"scanhub/internal/events"
	"scanhub/internal/log"
	"scanhub/internal/pipeline"
	"scanhub/internal/queue"
	"scanhub/internal/repository"
	"scanhub/internal/service"
	"scanhub/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "worker")
	if err := cfg.ValidateWorker(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()
	store := repository.NewStore(dbPool)

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	// Notifications raised here are stored; the API pushes live ones only.
	bus := events.NewBus(cfg.Notifications.BufferSize, log.Component(logger, "events"))
	notifications := service.NewNotificationService(store, bus, nil, cfg.Notifications.Window, log.Component(logger, "notifications"))
	busDone := make(chan struct{})
	go func() {
		bus.Run(context.Background(), notifications.Persist)
		close(busDone)
	}()

	activities := service.NewActivityService(store)
	scans := service.NewScanService(store, activities, notifications, nil, cfg.Storage.Bucket, log.Component(logger, "scans"))

	processor := tasks.NewProcessor(
		pipeline.NewClient(cfg.Pipeline.URL, cfg.Pipeline.Secret, cfg.Pipeline.Timeout),
		scans,
		store,
		cfg.Security.TokenTTL,
		cfg.Notifications.Retention,
		log.Component(logger, "tasks"),
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Notifications.ClaimInterval,
		cfg.Redis.MaxDeliveries,
		log.Component(logger, "consumer"),
		processor,
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}

	logger.Info().Msg("shutdown signal received")
	bus.Close()
	<-busDone
}
