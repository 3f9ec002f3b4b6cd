package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scanhub/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("unique constraint violation")
	ErrInvalidReference = errors.New("referenced record does not exist")
	ErrScanFinalized    = errors.New("scan already finalized")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortName      SortField = "name"
)

type ListOptions struct {
	Limit  int
	Offset int
	Sort   SortField
	Desc   bool
	Search string
}

func (o ListOptions) orderBy() string {
	column := "created_at"
	if o.Sort == SortName {
		column = "name"
	}
	direction := "ASC"
	if o.Desc {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", column, direction, direction)
}

type Users interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

type Files interface {
	Create(ctx context.Context, file models.File) error
	GetByID(ctx context.Context, id string) (models.File, error)
	GetByKey(ctx context.Context, key string) (models.File, error)
}

type Projects interface {
	Create(ctx context.Context, project models.Project) error
	GetByID(ctx context.Context, id string) (models.Project, error)
	FindForUser(ctx context.Context, userID, slugOrID string) (models.Project, error)
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]models.Project, int, error)
	Update(ctx context.Context, project models.Project) error
	Delete(ctx context.Context, userID, id string) error
}

type Scans interface {
	Create(ctx context.Context, scan models.Scan) error
	GetByID(ctx context.Context, id string) (models.Scan, error)
	FindForUser(ctx context.Context, userID, slugOrID string) (models.Scan, error)
	ListByProject(ctx context.Context, projectID string, opts ListOptions) ([]models.Scan, int, error)
	Update(ctx context.Context, scan models.Scan) error
	Delete(ctx context.Context, userID, id string) error
	Finalize(ctx context.Context, id string, status models.ScanStatus, splatFileID *string) (models.Scan, error)
}

type Notifications interface {
	Create(ctx context.Context, notification models.Notification) error
	ListSince(ctx context.Context, userID string, since time.Time) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type Activities interface {
	Create(ctx context.Context, activity models.Activity) error
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]models.Activity, int, error)
}

type Tokens interface {
	SaveVerification(ctx context.Context, v models.Verification) error
	GetVerification(ctx context.Context, userID string) (models.Verification, error)
	DeleteVerification(ctx context.Context, userID string) error
	SavePasswordReset(ctx context.Context, r models.PasswordReset) error
	GetPasswordReset(ctx context.Context, userID string) (models.PasswordReset, error)
	DeletePasswordReset(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Users() Users
	Files() Files
	Projects() Projects
	Scans() Scans
	Notifications() Notifications
	Activities() Activities
	Tokens() Tokens
	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}

type txStarter interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgStore struct {
	pool txStarter
	db   DBTX
}

func NewStore(pool *pgxpool.Pool) *PgStore {
	return newStore(pool)
}

func newStore(pool txStarter) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Users() Users                 { return &UserRepository{db: s.db} }
func (s *PgStore) Files() Files                 { return &FileRepository{db: s.db} }
func (s *PgStore) Projects() Projects           { return &ProjectRepository{db: s.db} }
func (s *PgStore) Scans() Scans                 { return &ScanRepository{db: s.db} }
func (s *PgStore) Notifications() Notifications { return &NotificationRepository{db: s.db} }
func (s *PgStore) Activities() Activities       { return &ActivityRepository{db: s.db} }
func (s *PgStore) Tokens() Tokens               { return &TokenRepository{db: s.db} }

func (s *PgStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgStore{db: tx})
	})
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrInvalidReference, pgErr.ConstraintName)
		}
	}
	return err
}

// countRows backs up COUNT(*) OVER() for pages past the last row, where
// there is no row to carry the window total.
func countRows(ctx context.Context, db DBTX, query string, args ...any) (int, error) {
	var total int
	if err := db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, translate(err)
	}
	return total, nil
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
