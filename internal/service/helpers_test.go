package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scanhub/internal/apperr"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
	"scanhub/internal/repository/memory"
	"scanhub/internal/security"
)

var testParams = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendVerification(ctx context.Context, user models.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, user models.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueScan(ctx context.Context, scan models.Scan, input models.File) error {
	args := m.Called(ctx, scan, input)
	return args.Error(0)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []NotificationInput
}

func (n *recordingNotifier) Send(_ context.Context, input NotificationInput) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, input)
}

func (n *recordingNotifier) types() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationType, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Type)
	}
	return out
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Bucket() string { return "test-bucket" }

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if f.failPut {
		return "", errors.New("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return "http://objects.test/test-bucket/" + key, nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

// seedUser stores a user directly, skipping signup.
func seedUser(t *testing.T, store *memory.Store, email, password string, verified bool) models.User {
	t.Helper()
	hash, err := security.HashPasswordWithParams(password, testParams)
	require.NoError(t, err)

	user := models.User{
		ID:           ids.New(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Verified:     verified,
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	user, err = store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	return user
}

func seedFile(t *testing.T, store *memory.Store, owner *models.User, fileType models.FileType) models.File {
	t.Helper()
	file := models.File{
		ID:           ids.New(),
		Name:         "input.mp4",
		Key:          ids.New(),
		Bucket:       "test-bucket",
		URL:          "http://objects.test/input.mp4",
		Type:         fileType,
		Mimetype:     "video/mp4",
		ThumbnailURL: "http://objects.test/input.jpg",
	}
	if owner != nil {
		file.UserID = &owner.ID
	}
	require.NoError(t, store.Files().Create(context.Background(), file))
	file, err := store.Files().GetByID(context.Background(), file.ID)
	require.NoError(t, err)
	return file
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	appErr := apperr.As(err)
	require.Equal(t, kind, appErr.Kind, "error: %v", err)
	return appErr
}

func pngBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0x00}, 64)...)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func defaultRepoOptions() repository.ListOptions {
	return repository.ListOptions{Limit: 100, Desc: true}
}
