package repository

import (
	"context"
	"errors"

	"scanhub/internal/models"
)

type ScanRepository struct {
	db DBTX
}

const scanColumns = `id, name, slug, status, input_file_id, splat_file_id, project_id, user_id, created_at, updated_at`

func (r *ScanRepository) Create(ctx context.Context, scan models.Scan) error {
	const query = `
		INSERT INTO scans (
			id, name, slug, status, input_file_id, splat_file_id, project_id, user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`
	_, err := r.db.Exec(ctx, query,
		scan.ID,
		scan.Name,
		scan.Slug,
		scan.Status,
		scan.InputFileID,
		scan.SplatFileID,
		scan.ProjectID,
		scan.UserID,
	)
	return translate(err)
}

func (r *ScanRepository) GetByID(ctx context.Context, id string) (models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`
	return scanScan(r.db.QueryRow(ctx, query, id))
}

func (r *ScanRepository) FindForUser(ctx context.Context, userID, slugOrID string) (models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE user_id = $1 AND (slug = $2 OR id = $2)`
	return scanScan(r.db.QueryRow(ctx, query, userID, slugOrID))
}

func (r *ScanRepository) ListByProject(ctx context.Context, projectID string, opts ListOptions) ([]models.Scan, int, error) {
	query := `
		SELECT ` + scanColumns + `, COUNT(*) OVER()
		FROM scans
		WHERE project_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY ` + opts.orderBy() + `
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, projectID, opts.Search, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var (
		scans []models.Scan
		total int
	)
	for rows.Next() {
		var scan models.Scan
		if err := rows.Scan(
			&scan.ID,
			&scan.Name,
			&scan.Slug,
			&scan.Status,
			&scan.InputFileID,
			&scan.SplatFileID,
			&scan.ProjectID,
			&scan.UserID,
			&scan.CreatedAt,
			&scan.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if len(scans) == 0 && opts.Offset > 0 {
		total, err = countRows(ctx, r.db, `SELECT COUNT(*) FROM scans WHERE project_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')`, projectID, opts.Search)
		if err != nil {
			return nil, 0, err
		}
	}
	return scans, total, nil
}

func (r *ScanRepository) Update(ctx context.Context, scan models.Scan) error {
	const query = `
		UPDATE scans SET name = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.Exec(ctx, query, scan.ID, scan.UserID, scan.Name))
}

func (r *ScanRepository) Delete(ctx context.Context, userID, id string) error {
	const query = `DELETE FROM scans WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.Exec(ctx, query, id, userID))
}

// Finalize moves a Preparing scan into a terminal status. A scan that is
// already terminal yields ErrScanFinalized.
func (r *ScanRepository) Finalize(ctx context.Context, id string, status models.ScanStatus, splatFileID *string) (models.Scan, error) {
	query := `
		UPDATE scans
		SET status = $2,
		    splat_file_id = COALESCE($3, splat_file_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'Preparing'
		RETURNING ` + scanColumns
	scan, err := scanScan(r.db.QueryRow(ctx, query, id, status, splatFileID))
	if !errors.Is(err, ErrNotFound) {
		return scan, err
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return models.Scan{}, err
	}
	return models.Scan{}, ErrScanFinalized
}

func scanScan(row rowScanner) (models.Scan, error) {
	var scan models.Scan
	if err := row.Scan(
		&scan.ID,
		&scan.Name,
		&scan.Slug,
		&scan.Status,
		&scan.InputFileID,
		&scan.SplatFileID,
		&scan.ProjectID,
		&scan.UserID,
		&scan.CreatedAt,
		&scan.UpdatedAt,
	); err != nil {
		return models.Scan{}, translate(err)
	}
	return scan, nil
}
