package repository

import (
	"context"

	"scanhub/internal/models"
)

type FileRepository struct {
	db DBTX
}

const fileColumns = `id, user_id, name, key, bucket, url, type, mimetype, size, thumbnail_url, created_at, updated_at`

func (r *FileRepository) Create(ctx context.Context, file models.File) error {
	const query = `
		INSERT INTO files (
			id, user_id, name, key, bucket, url, type, mimetype, size, thumbnail_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		file.ID,
		file.UserID,
		file.Name,
		file.Key,
		file.Bucket,
		file.URL,
		file.Type,
		file.Mimetype,
		file.Size,
		file.ThumbnailURL,
	)
	return translate(err)
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanFile(r.db.QueryRow(ctx, query, id))
}

func (r *FileRepository) GetByKey(ctx context.Context, key string) (models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE key = $1`
	return scanFile(r.db.QueryRow(ctx, query, key))
}

func scanFile(row rowScanner) (models.File, error) {
	var file models.File
	if err := row.Scan(
		&file.ID,
		&file.UserID,
		&file.Name,
		&file.Key,
		&file.Bucket,
		&file.URL,
		&file.Type,
		&file.Mimetype,
		&file.Size,
		&file.ThumbnailURL,
		&file.CreatedAt,
		&file.UpdatedAt,
	); err != nil {
		return models.File{}, translate(err)
	}
	return file, nil
}
