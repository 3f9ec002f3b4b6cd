package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"scanhub/internal/cache"
	"scanhub/internal/config"
	"scanhub/internal/database"
	"scanhub/internal/events"
	"scanhub/internal/graph"
	"scanhub/internal/handlers"
	"scanhub/internal/jobs"
	"scanhub/internal/log"
	"scanhub/internal/mail"
	"scanhub/internal/media/thumbnail"
	"scanhub/internal/metrics"
	"scanhub/internal/middleware"
	"scanhub/internal/queue"
	"scanhub/internal/realtime"
	"scanhub/internal/repository"
	"scanhub/internal/server"
	"scanhub/internal/service"
	"scanhub/internal/storage"
	"scanhub/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api")
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	if cfg.Postgres.Migrate {
		if err := database.Migrate(cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	store := repository.NewStore(dbPool)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	sender, err := mail.NewSMTPSender(cfg.SMTP)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init smtp client")
	}
	mailer := mail.NewMailer(sender, cfg.FrontendURL)

	hub := realtime.NewHub(log.Component(logger, "realtime"))
	bus := events.NewBus(cfg.Notifications.BufferSize, log.Component(logger, "events"))
	bus.OnDrop = metrics.RecordNotificationDropped
	notifications := service.NewNotificationService(store, bus, hub, cfg.Notifications.Window, log.Component(logger, "notifications"))

	busDone := make(chan struct{})
	go func() {
		bus.Run(context.Background(), notifications.Persist)
		close(busDone)
	}()

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream, cfg.HTTP.PublicURL)
	activities := service.NewActivityService(store)
	auth := service.NewAuthService(store, mailer, cfg.Security, log.Component(logger, "auth"))
	projects := service.NewProjectService(store, activities, notifications, log.Component(logger, "projects"))
	scans := service.NewScanService(store, activities, notifications, producer, objectStore.Bucket(), log.Component(logger, "scans"))
	files := service.NewFileService(store, objectStore, thumbnail.NewFFmpeg(cfg.Upload.FFmpegPath, cfg.Upload.ThumbnailSize), log.Component(logger, "files"))

	schema, err := graph.NewSchema(&graph.Resolver{
		Auth:          auth,
		Projects:      projects,
		Scans:         scans,
		Files:         files,
		Notifications: notifications,
		Activities:    activities,
		Log:           log.Component(logger, "graphql"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build graphql schema")
	}

	uploads, err := upload.NewServer(cfg.Upload, auth, files, log.Component(logger, "upload"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init upload server")
	}

	limiterStop := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)
	limiter.StartCleanup(time.Minute, limiterStop)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:    auth,
		Files:   files,
		Scans:   scans,
		GraphQL: graph.NewHandler(schema, log.Component(logger, "graphql")),
		Uploads: uploads,
		Hub:     hub,
		Nonces:  middleware.NewRedisNonceStore(redisClient),
		Limiter: limiter,
		Checks: map[string]handlers.Check{
			"database": dbPool.Ping,
			"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"storage":  objectStore.Ping,
		},
	})
	httpServer := server.NewHTTPServer(cfg.HTTP, cfg.Environment, cfg.AllowCORSOrigins, logger, handlerSet)

	scheduler := jobs.NewScheduler(producer, cfg.Notifications.CleanupCron, log.Component(logger, "scheduler"))
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient, func() {
		close(limiterStop)
		hub.Close()
		bus.Close()
		<-busDone
	})
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client, drain func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler did not stop in time")
	}

	// pending notifications are written before the pool closes
	drain()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
