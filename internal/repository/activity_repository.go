package repository

import (
	"context"

	"scanhub/internal/models"
)

type ActivityRepository struct {
	db DBTX
}

func (r *ActivityRepository) Create(ctx context.Context, a models.Activity) error {
	const query = `
		INSERT INTO activities (id, entity, type, metadata, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	metadata := a.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	_, err := r.db.Exec(ctx, query, a.ID, a.Entity, a.Type, metadata, a.UserID)
	return translate(err)
}

func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]models.Activity, int, error) {
	const query = `
		SELECT id, entity, type, metadata, user_id, created_at, COUNT(*) OVER()
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var (
		activities []models.Activity
		total      int
	)
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Entity, &a.Type, &a.Metadata, &a.UserID, &a.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if len(activities) == 0 && opts.Offset > 0 {
		total, err = countRows(ctx, r.db, `SELECT COUNT(*) FROM activities WHERE user_id = $1`, userID)
		if err != nil {
			return nil, 0, err
		}
	}
	return activities, total, nil
}
