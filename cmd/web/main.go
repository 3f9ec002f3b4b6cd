package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"scanhub/internal/config"
	"scanhub/internal/log"
	"scanhub/internal/server"
	"scanhub/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "web")
	if err := cfg.ValidateWeb(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	sessions, err := web.NewSessionStore(cfg.Web.SessionSecret, cfg.Web.SessionMaxAge, cfg.Environment == "production")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init session store")
	}

	handlerSet := web.NewHandlerSet(web.NewClient(cfg.Web.APIURL, cfg.HTTP.ReadTimeout), sessions, logger)
	httpServer := server.NewHTTPServer(config.HTTPConfig{
		Host:         cfg.Web.Host,
		Port:         cfg.Web.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, cfg.Environment, []string{cfg.FrontendURL}, logger, handlerSet)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
