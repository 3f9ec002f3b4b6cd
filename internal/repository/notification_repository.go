package repository

import (
	"context"
	"time"

	"scanhub/internal/models"
)

type NotificationRepository struct {
	db DBTX
}

func (r *NotificationRepository) Create(ctx context.Context, n models.Notification) error {
	const query = `
		INSERT INTO notifications (id, title, type, read, metadata, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	metadata := n.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	_, err := r.db.Exec(ctx, query, n.ID, n.Title, n.Type, n.Read, metadata, n.UserID, n.CreatedAt)
	return translate(err)
}

func (r *NotificationRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]models.Notification, error) {
	const query = `
		SELECT id, title, type, read, metadata, user_id, created_at
		FROM notifications
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Type, &n.Read, &n.Metadata, &n.UserID, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkAllRead only touches unread rows so read rows keep their state.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM notifications WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}
