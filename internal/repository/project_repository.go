package repository

import (
	"context"

	"scanhub/internal/models"
)

type ProjectRepository struct {
	db DBTX
}

const projectColumns = `id, name, slug, thumbnail_id, user_id, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, project models.Project) error {
	const query = `
		INSERT INTO projects (id, name, slug, thumbnail_id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Slug,
		project.ThumbnailID,
		project.UserID,
	)
	return translate(err)
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(r.db.QueryRow(ctx, query, id))
}

// FindForUser matches on slug or id, restricted to rows owned by userID.
func (r *ProjectRepository) FindForUser(ctx context.Context, userID, slugOrID string) (models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = $1 AND (slug = $2 OR id = $2)`
	return scanProject(r.db.QueryRow(ctx, query, userID, slugOrID))
}

func (r *ProjectRepository) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]models.Project, int, error) {
	query := `
		SELECT ` + projectColumns + `, COUNT(*) OVER()
		FROM projects
		WHERE user_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY ` + opts.orderBy() + `
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, opts.Search, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var (
		projects []models.Project
		total    int
	)
	for rows.Next() {
		var project models.Project
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Slug,
			&project.ThumbnailID,
			&project.UserID,
			&project.CreatedAt,
			&project.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if len(projects) == 0 && opts.Offset > 0 {
		total, err = countRows(ctx, r.db, `SELECT COUNT(*) FROM projects WHERE user_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')`, userID, opts.Search)
		if err != nil {
			return nil, 0, err
		}
	}
	return projects, total, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project models.Project) error {
	const query = `
		UPDATE projects
		SET name = $3,
		    thumbnail_id = $4,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	return expectOne(r.db.Exec(ctx, query, project.ID, project.UserID, project.Name, project.ThumbnailID))
}

func (r *ProjectRepository) Delete(ctx context.Context, userID, id string) error {
	const query = `DELETE FROM projects WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.Exec(ctx, query, id, userID))
}

func scanProject(row rowScanner) (models.Project, error) {
	var project models.Project
	if err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Slug,
		&project.ThumbnailID,
		&project.UserID,
		&project.CreatedAt,
		&project.UpdatedAt,
	); err != nil {
		return models.Project{}, translate(err)
	}
	return project, nil
}
