package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	tusd "github.com/tus/tusd/v2/pkg/handler"
	"github.com/tus/tusd/v2/pkg/filestore"
	"github.com/tus/tusd/v2/pkg/memorylocker"

	"scanhub/internal/apperr"
	"scanhub/internal/config"
	applog "scanhub/internal/log"
	"scanhub/internal/metrics"
	"scanhub/internal/middleware"
	"scanhub/internal/models"
	"scanhub/internal/service"
)

const (
	metaFilename = "filename"
	metaUserID   = "user_id"

	HeaderFileID  = "Scanhub-File-Id"
	HeaderFileURL = "Scanhub-File-Url"
)

type Completer interface {
	CompleteUpload(ctx context.Context, upload service.UploadedFile) (models.File, error)
}

// Server speaks tus 1.0 at /files. Chunks are staged on local disk and handed
// to the file service once the last byte arrives.
type Server struct {
	handler  *tusd.UnroutedHandler
	composer *tusd.StoreComposer
	auth     middleware.Authenticator
	files    Completer
	log      zerolog.Logger
}

func NewServer(cfg config.UploadConfig, auth middleware.Authenticator, files Completer, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	composer := tusd.NewStoreComposer()
	filestore.New(cfg.Dir).UseIn(composer)
	memorylocker.New().UseIn(composer)

	s := &Server{composer: composer, auth: auth, files: files, log: log}

	handler, err := tusd.NewUnroutedHandler(tusd.Config{
		BasePath:                  "/files/",
		StoreComposer:             composer,
		MaxSize:                   cfg.MaxSize,
		RespectForwardedHeaders:   true,
		PreUploadCreateCallback:   s.beforeCreate,
		PreFinishResponseCallback: s.beforeFinish,
		Logger:                    slog.New(applog.SlogHandler(log, slog.LevelWarn)),
	})
	if err != nil {
		return nil, fmt.Errorf("tus handler: %w", err)
	}
	s.handler = handler
	return s, nil
}

func (s *Server) Post() gin.HandlerFunc {
	return gin.WrapH(s.handler.Middleware(http.HandlerFunc(s.handler.PostFile)))
}

func (s *Server) Head() gin.HandlerFunc {
	return gin.WrapH(s.handler.Middleware(http.HandlerFunc(s.handler.HeadFile)))
}

func (s *Server) Patch() gin.HandlerFunc {
	return gin.WrapH(s.handler.Middleware(http.HandlerFunc(s.handler.PatchFile)))
}

// RequireOwner hides uploads started by someone else. Run it after
// middleware.RequireUser.
func (s *Server) RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		owner, err := s.owner(c.Request.Context(), c.Param("id"))
		if err != nil || owner != user.ID {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
			return
		}
		c.Next()
	}
}

func (s *Server) owner(ctx context.Context, id string) (string, error) {
	up, err := s.composer.Core.GetUpload(ctx, id)
	if err != nil {
		return "", err
	}
	info, err := up.GetInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.MetaData[metaUserID], nil
}

// beforeCreate stamps the uploader onto the upload metadata, overriding any
// client supplied value.
func (s *Server) beforeCreate(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error) {
	if strings.TrimSpace(hook.Upload.MetaData[metaFilename]) == "" {
		return tusd.HTTPResponse{}, tusd.FileInfoChanges{}, tusd.NewError("ERR_MISSING_FILENAME", "Upload-Metadata must include filename", http.StatusBadRequest)
	}

	user, err := s.auth.Authenticate(hook.Context, bearer(hook.HTTPRequest.Header))
	if err != nil {
		return tusd.HTTPResponse{}, tusd.FileInfoChanges{}, tusd.NewError("ERR_UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
	}

	meta := make(tusd.MetaData, len(hook.Upload.MetaData)+1)
	for k, v := range hook.Upload.MetaData {
		meta[k] = v
	}
	meta[metaUserID] = user.ID
	return tusd.HTTPResponse{}, tusd.FileInfoChanges{MetaData: meta}, nil
}

// beforeFinish runs before the final PATCH is answered, so storage failures
// reach the client.
func (s *Server) beforeFinish(hook tusd.HookEvent) (tusd.HTTPResponse, error) {
	info := hook.Upload
	// TODO: terminate the staged upload once the object store holds the bytes.
	file, err := s.files.CompleteUpload(hook.Context, service.UploadedFile{
		Key:    info.ID,
		Name:   info.MetaData[metaFilename],
		UserID: info.MetaData[metaUserID],
		Path:   info.Storage["Path"],
		Size:   info.Size,
	})
	if err != nil {
		appErr := apperr.As(err)
		if appErr.Kind == apperr.KindInternal {
			s.log.Error().Err(err).
				Str("upload_id", info.ID).
				Str("request_id", middleware.RequestIDFrom(hook.HTTPRequest.Header)).
				Msg("complete upload failed")
		}
		return tusd.HTTPResponse{}, tusd.NewError("ERR_"+string(appErr.Kind), appErr.Message, appErr.HTTPStatus())
	}

	metrics.RecordUpload(string(file.Type))
	s.log.Info().
		Str("file_id", file.ID).
		Str("key", file.Key).
		Str("type", string(file.Type)).
		Str("request_id", middleware.RequestIDFrom(hook.HTTPRequest.Header)).
		Msg("upload stored")

	return tusd.HTTPResponse{
		Header: tusd.HTTPHeader{
			HeaderFileID:  file.ID,
			HeaderFileURL: file.URL,
		},
	}, nil
}

func bearer(h http.Header) string {
	return strings.TrimSpace(strings.TrimPrefix(h.Get("Authorization"), "Bearer "))
}
