package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/config"
	"scanhub/internal/graph"
	"scanhub/internal/metrics"
	"scanhub/internal/middleware"
	"scanhub/internal/models"
	"scanhub/internal/realtime"
	"scanhub/internal/service"
	"scanhub/internal/upload"
)

// Check probes one dependency for the health endpoint.
type Check func(ctx context.Context) error

type FileRetriever interface {
	Retrieve(ctx context.Context, key string) (models.File, error)
}

type ScanCompleter interface {
	Complete(ctx context.Context, scanID string, input service.CallbackInput) (models.Scan, error)
}

type Deps struct {
	Auth    middleware.Authenticator
	Files   FileRetriever
	Scans   ScanCompleter
	GraphQL *graph.Handler
	Uploads *upload.Server
	Hub     *realtime.Hub
	Nonces  middleware.NonceStore
	Limiter *middleware.RateLimiter
	Checks  map[string]Check
}

type HandlerSet struct {
	log  zerolog.Logger
	cfg  *config.AppConfig
	deps Deps
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{log: log, cfg: cfg, deps: deps}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	limited := []gin.HandlerFunc{}
	if h.deps.Limiter != nil {
		limited = append(limited, h.deps.Limiter.Handler())
	}

	if h.deps.GraphQL != nil {
		gql := router.Group("/graphql", limited...)
		gql.POST("", h.deps.GraphQL.Serve)
		gql.GET("", h.deps.GraphQL.Serve)
	}

	router.GET("/files/:key", h.RetrieveFile)

	if h.deps.Uploads != nil {
		files := router.Group("/files", append(limited, middleware.Auth(h.deps.Auth), middleware.RequireUser())...)
		files.POST("", h.deps.Uploads.Post())
		files.HEAD("/:id", h.deps.Uploads.RequireOwner(), h.deps.Uploads.Head())
		files.PATCH("/:id", h.deps.Uploads.RequireOwner(), h.deps.Uploads.Patch())
	}

	router.POST("/scans/:id/callback",
		middleware.CallbackSignature(h.cfg.Pipeline.Secret, h.cfg.Security.CallbackMaxSkew, h.deps.Nonces),
		h.ScanCallback,
	)

	if h.deps.Hub != nil {
		router.GET("/notifications/ws", middleware.SocketAuth(h.deps.Auth), middleware.RequireUser(), h.NotificationsSocket)
	}
}

func respondError(c *gin.Context, log zerolog.Logger, err error) {
	appErr := apperr.As(err)
	if appErr.Kind == apperr.KindInternal {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), body)
}
