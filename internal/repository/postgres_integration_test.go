//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/config"
	"scanhub/internal/database"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
)

// Runs against a real database with the embedded migrations applied:
//
//	SCANHUB_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/repository/
func newPgStore(t *testing.T) (*repository.PgStore, func(string, ...any) error) {
	t.Helper()
	dsn := os.Getenv("SCANHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCANHUB_TEST_POSTGRES_DSN not set")
	}
	require.NoError(t, database.Migrate(dsn))

	pool, err := database.NewPostgresPool(context.Background(), config.PostgresConfig{DSN: dsn, MaxOpen: 4, MaxIdle: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	exec := func(query string, args ...any) error {
		_, err := pool.Exec(context.Background(), query, args...)
		return err
	}
	return repository.NewStore(pool), exec
}

func createUser(t *testing.T, store repository.Store) models.User {
	t.Helper()
	user := models.User{ID: ids.New(), Name: "Ada", Email: ids.New() + "@example.com", PasswordHash: []byte("hash"), Verified: true}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func TestPostgres_UserDeleteCascadesThroughScans(t *testing.T) {
	store, exec := newPgStore(t)
	ctx := context.Background()
	user := createUser(t, store)

	input := models.File{ID: ids.New(), UserID: &user.ID, Name: "in.mp4", Key: ids.New(), Bucket: "b", URL: "u", Type: models.FileTypeVideo, Mimetype: "video/mp4", ThumbnailURL: "u"}
	require.NoError(t, store.Files().Create(ctx, input))
	project := models.Project{ID: ids.New(), Name: "Garden", Slug: "garden-" + ids.New(), UserID: user.ID}
	require.NoError(t, store.Projects().Create(ctx, project))
	scan := models.Scan{ID: ids.New(), Name: "Room", Slug: "room-" + ids.New(), Status: models.ScanStatusPreparing, InputFileID: input.ID, ProjectID: project.ID, UserID: user.ID}
	require.NoError(t, store.Scans().Create(ctx, scan))

	require.NoError(t, exec(`DELETE FROM users WHERE id = $1`, user.ID))

	_, err := store.Scans().GetByID(ctx, scan.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Files().GetByID(ctx, input.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgres_ConstraintErrors(t *testing.T) {
	store, exec := newPgStore(t)
	ctx := context.Background()
	user := createUser(t, store)
	t.Cleanup(func() { _ = exec(`DELETE FROM users WHERE id = $1`, user.ID) })

	slug := "kitchen-" + ids.New()
	require.NoError(t, store.Projects().Create(ctx, models.Project{ID: ids.New(), Name: "Kitchen", Slug: slug, UserID: user.ID}))

	err := store.Projects().Create(ctx, models.Project{ID: ids.New(), Name: "Kitchen", Slug: slug, UserID: user.ID})
	assert.ErrorIs(t, err, repository.ErrConflict)

	missing := ids.New()
	err = store.Projects().Create(ctx, models.Project{ID: ids.New(), Name: "Hall", Slug: "hall-" + ids.New(), ThumbnailID: &missing, UserID: user.ID})
	assert.ErrorIs(t, err, repository.ErrInvalidReference)
}

func TestPostgres_ListPastLastPageKeepsTotal(t *testing.T) {
	store, exec := newPgStore(t)
	ctx := context.Background()
	user := createUser(t, store)
	t.Cleanup(func() { _ = exec(`DELETE FROM users WHERE id = $1`, user.ID) })

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Projects().Create(ctx, models.Project{ID: ids.New(), Name: "P", Slug: "p-" + ids.New(), UserID: user.ID}))
	}

	items, total, err := store.Projects().ListByUser(ctx, user.ID, repository.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, total)

	items, total, err = store.Projects().ListByUser(ctx, user.ID, repository.ListOptions{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 3, total)
}

func TestPostgres_FinalizeOnce(t *testing.T) {
	store, exec := newPgStore(t)
	ctx := context.Background()
	user := createUser(t, store)
	t.Cleanup(func() { _ = exec(`DELETE FROM users WHERE id = $1`, user.ID) })

	input := models.File{ID: ids.New(), UserID: &user.ID, Name: "in.mp4", Key: ids.New(), Bucket: "b", URL: "u", Type: models.FileTypeVideo, Mimetype: "video/mp4", ThumbnailURL: "u"}
	require.NoError(t, store.Files().Create(ctx, input))
	project := models.Project{ID: ids.New(), Name: "Garden", Slug: "garden-" + ids.New(), UserID: user.ID}
	require.NoError(t, store.Projects().Create(ctx, project))
	scan := models.Scan{ID: ids.New(), Name: "Room", Slug: "room-" + ids.New(), Status: models.ScanStatusPreparing, InputFileID: input.ID, ProjectID: project.ID, UserID: user.ID}
	require.NoError(t, store.Scans().Create(ctx, scan))

	done, err := store.Scans().Finalize(ctx, scan.ID, models.ScanStatusFailed, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusFailed, done.Status)

	_, err = store.Scans().Finalize(ctx, scan.ID, models.ScanStatusCompleted, nil)
	assert.ErrorIs(t, err, repository.ErrScanFinalized)
}

func TestPostgres_TokensAndNotifications(t *testing.T) {
	store, exec := newPgStore(t)
	ctx := context.Background()
	user := createUser(t, store)
	t.Cleanup(func() { _ = exec(`DELETE FROM users WHERE id = $1`, user.ID) })

	require.NoError(t, store.Tokens().SaveVerification(ctx, models.Verification{ID: ids.New(), TokenHash: []byte("first"), UserID: user.ID}))
	require.NoError(t, store.Tokens().SaveVerification(ctx, models.Verification{ID: ids.New(), TokenHash: []byte("second"), UserID: user.ID}))
	v, err := store.Tokens().GetVerification(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), v.TokenHash)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.Notifications().Create(ctx, models.Notification{
			ID: ids.New(), Title: "t", Type: models.NotificationScanCreated, UserID: user.ID, CreatedAt: time.Now(),
		}))
	}
	n, err := store.Notifications().MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Notifications().MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
