package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/ids"
	"scanhub/internal/media/sniffer"
	"scanhub/internal/media/svg"
	"scanhub/internal/models"
	"scanhub/internal/repository"
)

type ObjectStore interface {
	Bucket() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

type Thumbnailer interface {
	Thumbnail(ctx context.Context, src string) (string, error)
}

type FileService struct {
	store   repository.Store
	objects ObjectStore
	thumbs  Thumbnailer
	log     zerolog.Logger
}

func NewFileService(store repository.Store, objects ObjectStore, thumbs Thumbnailer, log zerolog.Logger) *FileService {
	return &FileService{
		store:   store,
		objects: objects,
		thumbs:  thumbs,
		log:     log,
	}
}

// Retrieve looks a file up by storage key.
func (s *FileService) Retrieve(ctx context.Context, key string) (models.File, error) {
	file, err := s.store.Files().GetByKey(ctx, key)
	if err != nil {
		return models.File{}, storeErr(err, msgFileNotFound, "")
	}
	return file, nil
}

// FindByID loads a file referenced by an entity the caller already owns.
func (s *FileService) FindByID(ctx context.Context, id string) (models.File, error) {
	file, err := s.store.Files().GetByID(ctx, id)
	if err != nil {
		return models.File{}, storeErr(err, msgFileNotFound, "")
	}
	return file, nil
}

// UploadedFile describes a finished chunked upload staged on local disk.
type UploadedFile struct {
	Key    string
	Name   string
	UserID string
	Path   string
	Size   int64
}

// CompleteUpload moves a staged upload into object storage and records it.
// Storage failures propagate; thumbnail failures fall back to the file URL.
func (s *FileService) CompleteUpload(ctx context.Context, upload UploadedFile) (models.File, error) {
	f, err := os.Open(upload.Path)
	if err != nil {
		return models.File{}, apperr.Internal(fmt.Errorf("open staged upload: %w", err))
	}
	defer f.Close()

	result, _, err := sniffer.Detect(f)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnknownType) {
			return models.File{}, apperr.Validation(map[string]string{"file": "file must be an image or a video"})
		}
		return models.File{}, apperr.Internal(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.File{}, apperr.Internal(fmt.Errorf("rewind: %w", err))
	}

	var (
		body io.Reader = f
		size           = upload.Size
	)
	if result.Type == sniffer.TypeSVG {
		data, err := io.ReadAll(f)
		if err != nil {
			return models.File{}, apperr.Internal(fmt.Errorf("read svg: %w", err))
		}
		clean, err := svg.Sanitize(data)
		if err != nil {
			return models.File{}, apperr.Validation(map[string]string{"file": "file is not a valid svg document"})
		}
		body, size = bytes.NewReader(clean), int64(len(clean))
	}

	url, err := s.objects.Put(ctx, upload.Key, body, size, result.MIME)
	if err != nil {
		return models.File{}, apperr.Internal(err)
	}

	fileType := models.FileTypeImage
	thumbnailURL := url
	if result.Type.IsVideo() {
		fileType = models.FileTypeVideo
		thumbnailURL = s.videoThumbnail(ctx, upload, url)
	}

	file := models.File{
		ID:           ids.New(),
		Name:         displayName(upload.Name, upload.Key),
		Key:          upload.Key,
		Bucket:       s.objects.Bucket(),
		URL:          url,
		Type:         fileType,
		Mimetype:     result.MIME,
		Size:         size,
		ThumbnailURL: thumbnailURL,
	}
	if upload.UserID != "" {
		userID := upload.UserID
		file.UserID = &userID
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Files().Create(ctx, file); err != nil {
			return err
		}
		var err error
		file, err = tx.Files().GetByID(ctx, file.ID)
		return err
	})
	if err != nil {
		if rmErr := s.objects.Remove(ctx, upload.Key); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("key", upload.Key).Msg("remove orphaned object failed")
		}
		return models.File{}, storeErr(err, msgFileNotFound, "File already exists")
	}

	s.log.Info().
		Str("file_id", file.ID).
		Str("key", file.Key).
		Str("type", string(file.Type)).
		Int64("size", file.Size).
		Msg("upload stored")
	return file, nil
}

func (s *FileService) videoThumbnail(ctx context.Context, upload UploadedFile, fallback string) string {
	if s.thumbs == nil {
		return fallback
	}

	path, err := s.thumbs.Thumbnail(ctx, upload.Path)
	if err != nil {
		s.log.Warn().Err(err).Str("key", upload.Key).Msg("thumbnail extraction failed")
		return fallback
	}
	defer os.Remove(path)

	thumb, err := os.Open(path)
	if err != nil {
		s.log.Warn().Err(err).Str("key", upload.Key).Msg("open thumbnail failed")
		return fallback
	}
	defer thumb.Close()

	info, err := thumb.Stat()
	if err != nil {
		return fallback
	}

	url, err := s.objects.Put(ctx, upload.Key+".thumbnail.jpg", thumb, info.Size(), "image/jpeg")
	if err != nil {
		s.log.Warn().Err(err).Str("key", upload.Key).Msg("thumbnail upload failed")
		return fallback
	}
	return url
}

func displayName(name, key string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return key
	}
	return name
}
