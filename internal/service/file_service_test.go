package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/apperr"
	"scanhub/internal/models"
	"scanhub/internal/repository/memory"
)

type stubThumbnailer struct {
	err error
}

func (s stubThumbnailer) Thumbnail(_ context.Context, src string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	dst := src + ".thumbnail.jpg"
	if err := os.WriteFile(dst, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

func stage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func mp4Bytes() []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, make([]byte, 64)...)
}

func TestCompleteUpload_Image(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	svc := NewFileService(store, objects, stubThumbnailer{}, nopLogger())
	user := seedUser(t, store, "ada@example.com", "password123", true)
	data := pngBytes()

	file, err := svc.CompleteUpload(context.Background(), UploadedFile{
		Key:    "upload-1",
		Name:   "photo.png",
		UserID: user.ID,
		Path:   stage(t, data),
		Size:   int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeImage, file.Type)
	assert.Equal(t, "image/png", file.Mimetype)
	assert.Equal(t, "photo.png", file.Name)
	assert.Equal(t, "test-bucket", file.Bucket)
	assert.Equal(t, "http://objects.test/test-bucket/upload-1", file.URL)
	assert.Equal(t, file.URL, file.ThumbnailURL)
	require.NotNil(t, file.UserID)
	assert.Equal(t, user.ID, *file.UserID)

	stored, ok := objects.get("upload-1")
	require.True(t, ok)
	assert.Equal(t, data, stored)
}

func TestCompleteUpload_VideoThumbnail(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	svc := NewFileService(store, objects, stubThumbnailer{}, nopLogger())
	data := mp4Bytes()

	file, err := svc.CompleteUpload(context.Background(), UploadedFile{Key: "clip", Name: "clip.mp4", Path: stage(t, data), Size: int64(len(data))})
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeVideo, file.Type)
	assert.Equal(t, "http://objects.test/test-bucket/clip.thumbnail.jpg", file.ThumbnailURL)
	_, ok := objects.get("clip.thumbnail.jpg")
	assert.True(t, ok)
	assert.Nil(t, file.UserID)
}

func TestCompleteUpload_ThumbnailFailureFallsBack(t *testing.T) {
	store := memory.New()
	svc := NewFileService(store, newFakeObjects(), stubThumbnailer{err: errors.New("ffmpeg missing")}, nopLogger())
	data := mp4Bytes()

	file, err := svc.CompleteUpload(context.Background(), UploadedFile{Key: "clip", Name: "clip.mp4", Path: stage(t, data), Size: int64(len(data))})
	require.NoError(t, err)
	assert.Equal(t, file.URL, file.ThumbnailURL)
}

func TestCompleteUpload_SanitizesSVG(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	svc := NewFileService(store, objects, nil, nopLogger())
	data := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script><rect/></svg>`)

	file, err := svc.CompleteUpload(context.Background(), UploadedFile{Key: "logo", Name: "logo.svg", Path: stage(t, data), Size: int64(len(data))})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", file.Mimetype)

	stored, _ := objects.get("logo")
	assert.NotContains(t, string(stored), "script")
	assert.Equal(t, int64(len(stored)), file.Size)
}

func TestCompleteUpload_UnknownType(t *testing.T) {
	store := memory.New()
	svc := NewFileService(store, newFakeObjects(), nil, nopLogger())

	_, err := svc.CompleteUpload(context.Background(), UploadedFile{Key: "doc", Name: "notes.txt", Path: stage(t, []byte("hello world"))})
	requireKind(t, err, apperr.KindValidation)
}

func TestCompleteUpload_StorageFailurePropagates(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	objects.failPut = true
	svc := NewFileService(store, objects, nil, nopLogger())
	data := pngBytes()

	_, err := svc.CompleteUpload(context.Background(), UploadedFile{Key: "upload-1", Name: "photo.png", Path: stage(t, data), Size: int64(len(data))})
	requireKind(t, err, apperr.KindInternal)

	_, err = svc.Retrieve(context.Background(), "upload-1")
	requireKind(t, err, apperr.KindNotFound)
}

func TestRetrieve(t *testing.T) {
	store := memory.New()
	svc := NewFileService(store, newFakeObjects(), nil, nopLogger())
	seeded := seedFile(t, store, nil, models.FileTypeVideo)

	file, err := svc.Retrieve(context.Background(), seeded.Key)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, file.ID)

	_, err = svc.Retrieve(context.Background(), "missing")
	appErr := requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, "File not found", appErr.Message)
}
