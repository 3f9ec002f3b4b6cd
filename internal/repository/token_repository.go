package repository

import (
	"context"
	"time"

	"scanhub/internal/models"
)

// TokenRepository persists verification and password reset tokens. Each
// user holds at most one of each; saving replaces the previous token.
type TokenRepository struct {
	db DBTX
}

func (r *TokenRepository) SaveVerification(ctx context.Context, v models.Verification) error {
	const query = `
		INSERT INTO verifications (id, token_hash, user_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET id = EXCLUDED.id, token_hash = EXCLUDED.token_hash, created_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, v.ID, v.TokenHash, v.UserID)
	return translate(err)
}

func (r *TokenRepository) GetVerification(ctx context.Context, userID string) (models.Verification, error) {
	const query = `SELECT id, token_hash, user_id, created_at FROM verifications WHERE user_id = $1`
	var v models.Verification
	if err := r.db.QueryRow(ctx, query, userID).Scan(&v.ID, &v.TokenHash, &v.UserID, &v.CreatedAt); err != nil {
		return models.Verification{}, translate(err)
	}
	return v, nil
}

func (r *TokenRepository) DeleteVerification(ctx context.Context, userID string) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM verifications WHERE user_id = $1`, userID))
}

func (r *TokenRepository) SavePasswordReset(ctx context.Context, pr models.PasswordReset) error {
	const query = `
		INSERT INTO password_resets (id, token_hash, user_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET id = EXCLUDED.id, token_hash = EXCLUDED.token_hash, created_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, pr.ID, pr.TokenHash, pr.UserID)
	return translate(err)
}

func (r *TokenRepository) GetPasswordReset(ctx context.Context, userID string) (models.PasswordReset, error) {
	const query = `SELECT id, token_hash, user_id, created_at FROM password_resets WHERE user_id = $1`
	var pr models.PasswordReset
	if err := r.db.QueryRow(ctx, query, userID).Scan(&pr.ID, &pr.TokenHash, &pr.UserID, &pr.CreatedAt); err != nil {
		return models.PasswordReset{}, translate(err)
	}
	return pr, nil
}

func (r *TokenRepository) DeletePasswordReset(ctx context.Context, userID string) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID))
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM verifications WHERE created_at < $1`,
		`DELETE FROM password_resets WHERE created_at < $1`,
	} {
		tag, err := r.db.Exec(ctx, query, before)
		if err != nil {
			return total, translate(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
