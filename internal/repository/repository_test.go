package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/models"
)

func newMockStore(t *testing.T) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return newStore(mock), mock
}

func stmt(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

var scanColumnNames = []string{
	"id", "name", "slug", "status", "input_file_id", "splat_file_id",
	"project_id", "user_id", "created_at", "updated_at",
}

func TestTranslate(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "projects_slug_key"}, ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503", ConstraintName: "projects_thumbnail_id_fkey"}, ErrInvalidReference},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, nil},
		{"plain error", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)
			if tt.want == nil {
				assert.Same(t, tt.in, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, translate(nil))
}

func TestProjectCreate_DuplicateSlug(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(stmt("INSERT INTO projects")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "projects_slug_key"})

	err := store.Projects().Create(context.Background(), models.Project{ID: "p1", Name: "Garden", Slug: "garden", UserID: "u1"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "projects_slug_key")
}

func TestProjectListByUser_PageAfterLastRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(stmt("COUNT(*) OVER()")).
		WithArgs("u1", "", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "thumbnail_id", "user_id", "created_at", "updated_at", "count"}))
	mock.ExpectQuery(stmt("SELECT COUNT(*) FROM projects")).
		WithArgs("u1", "").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	projects, total, err := store.Projects().ListByUser(context.Background(), "u1", ListOptions{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Equal(t, 3, total)
}

func TestProjectListByUser_FirstPageUsesWindowTotal(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(stmt("COUNT(*) OVER()")).
		WithArgs("u1", "gar", 1, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "thumbnail_id", "user_id", "created_at", "updated_at", "count"}).
			AddRow("p1", "Garden", "garden", (*string)(nil), "u1", now, now, 2))

	projects, total, err := store.Projects().ListByUser(context.Background(), "u1", ListOptions{Limit: 1, Search: "gar"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "garden", projects[0].Slug)
	assert.Nil(t, projects[0].ThumbnailID)
	assert.Equal(t, 2, total)
}

func TestScanFinalize_AlreadyTerminal(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(stmt("UPDATE scans")).
		WithArgs("s1", models.ScanStatusCompleted, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(stmt("FROM scans WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(scanColumnNames).
			AddRow("s1", "Room", "room", models.ScanStatusFailed, "f1", (*string)(nil), "p1", "u1", now, now))

	_, err := store.Scans().Finalize(context.Background(), "s1", models.ScanStatusCompleted, nil)
	assert.ErrorIs(t, err, ErrScanFinalized)
}

func TestScanFinalize_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(stmt("UPDATE scans")).
		WithArgs("s1", models.ScanStatusFailed, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(stmt("FROM scans WHERE id = $1")).
		WithArgs("s1").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Scans().Finalize(context.Background(), "s1", models.ScanStatusFailed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanFinalize_Preparing(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	splat := "f2"

	mock.ExpectQuery(stmt("WHERE id = $1 AND status = 'Preparing'")).
		WithArgs("s1", models.ScanStatusCompleted, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(scanColumnNames).
			AddRow("s1", "Room", "room", models.ScanStatusCompleted, "f1", &splat, "p1", "u1", now, now))

	scan, err := store.Scans().Finalize(context.Background(), "s1", models.ScanStatusCompleted, &splat)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	require.NotNil(t, scan.SplatFileID)
	assert.Equal(t, "f2", *scan.SplatFileID)
}

func TestNotificationsMarkAllRead_OnlyUnread(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(stmt("UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE")).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.Notifications().MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTokensSaveVerification_ReplacesPerUser(t *testing.T) {
	store, mock := newMockStore(t)
	hash := []byte{0x01, 0x02}

	mock.ExpectExec(stmt("ON CONFLICT (user_id)")).
		WithArgs("v1", hash, "u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(stmt("INSERT INTO password_resets")).
		WithArgs("r1", hash, "u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := context.Background()
	require.NoError(t, store.Tokens().SaveVerification(ctx, models.Verification{ID: "v1", TokenHash: hash, UserID: "u1"}))
	require.NoError(t, store.Tokens().SavePasswordReset(ctx, models.PasswordReset{ID: "r1", TokenHash: hash, UserID: "u1"}))
}

func TestTokensDeleteVerification_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(stmt("DELETE FROM verifications WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.Tokens().DeleteVerification(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(stmt("INSERT INTO projects")).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := store.WithTx(context.Background(), func(tx Store) error {
			return tx.Projects().Create(context.Background(), models.Project{ID: "p1", Name: "Garden", Slug: "garden", UserID: "u1"})
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(stmt("INSERT INTO projects")).
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "projects_thumbnail_id_fkey"})
		mock.ExpectRollback()

		err := store.WithTx(context.Background(), func(tx Store) error {
			return tx.Projects().Create(context.Background(), models.Project{ID: "p1", Name: "Garden", Slug: "garden", UserID: "u1"})
		})
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
}
