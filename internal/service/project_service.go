package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
	"scanhub/internal/validation"
)

const (
	msgProjectNotFound = "Project not found"
	msgFileNotFound    = "File not found"
	msgNameInUse       = "Name already in use"
)

type Notifier interface {
	Send(ctx context.Context, input NotificationInput)
}

type ProjectService struct {
	store      repository.Store
	activities *ActivityService
	notifier   Notifier
	log        zerolog.Logger
}

func NewProjectService(store repository.Store, activities *ActivityService, notifier Notifier, log zerolog.Logger) *ProjectService {
	return &ProjectService{
		store:      store,
		activities: activities,
		notifier:   notifier,
		log:        log,
	}
}

type ProjectInput struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	ThumbnailID *string `json:"thumbnail_id" validate:"omitempty,min=1"`
	// ClearThumbnail marks an explicit null on update. A nil ThumbnailID
	// without it leaves the current thumbnail in place.
	ClearThumbnail bool `json:"-"`
}

func (s *ProjectService) Find(ctx context.Context, user models.User, slugOrID string) (models.Project, error) {
	project, err := s.store.Projects().FindForUser(ctx, user.ID, slugOrID)
	if err != nil {
		return models.Project{}, storeErr(err, msgProjectNotFound, "")
	}
	return project, nil
}

func (s *ProjectService) List(ctx context.Context, user models.User, opts ListOptions) (Page[models.Project], error) {
	opts, query, err := opts.normalize()
	if err != nil {
		return Page[models.Project]{}, err
	}
	items, total, err := s.store.Projects().ListByUser(ctx, user.ID, query)
	if err != nil {
		return Page[models.Project]{}, apperr.Internal(err)
	}
	return newPage(items, total, opts), nil
}

// Create derives the slug from the name. Slugs are globally unique, so a
// second project deriving the same slug is rejected even across users.
func (s *ProjectService) Create(ctx context.Context, user models.User, input ProjectInput) (models.Project, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.Project{}, err
	}
	projectSlug := slug.Make(input.Name)
	if projectSlug == "" {
		return models.Project{}, apperr.Validation(map[string]string{"name": "name must contain letters or digits"})
	}

	project := models.Project{
		ID:          ids.New(),
		Name:        input.Name,
		Slug:        projectSlug,
		ThumbnailID: input.ThumbnailID,
		UserID:      user.ID,
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := checkFileOwner(ctx, tx, user, input.ThumbnailID); err != nil {
			return err
		}
		if err := tx.Projects().Create(ctx, project); err != nil {
			return err
		}
		var err error
		project, err = tx.Projects().GetByID(ctx, project.ID)
		if err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityProject, models.ActivityCreated, map[string]any{
			"project_id": project.ID,
			"name":       project.Name,
		})
	})
	if err != nil {
		return models.Project{}, storeErr(err, msgFileNotFound, msgNameInUse)
	}

	s.notifier.Send(ctx, NotificationInput{
		UserID:   user.ID,
		Title:    "Project " + project.Name + " created",
		Type:     models.NotificationProjectCreated,
		Metadata: map[string]any{"project_id": project.ID, "slug": project.Slug},
	})
	return project, nil
}

// Update renames a project or swaps its thumbnail. The slug stays the one
// derived at creation.
func (s *ProjectService) Update(ctx context.Context, user models.User, id string, input ProjectInput) (models.Project, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.Project{}, err
	}

	var project models.Project
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		project, err = tx.Projects().FindForUser(ctx, user.ID, id)
		if err != nil {
			return err
		}
		if err := checkFileOwner(ctx, tx, user, input.ThumbnailID); err != nil {
			return err
		}

		project.Name = input.Name
		switch {
		case input.ThumbnailID != nil:
			project.ThumbnailID = input.ThumbnailID
		case input.ClearThumbnail:
			project.ThumbnailID = nil
		}
		if err := tx.Projects().Update(ctx, project); err != nil {
			return err
		}
		if project, err = tx.Projects().GetByID(ctx, project.ID); err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityProject, models.ActivityUpdated, map[string]any{
			"project_id": project.ID,
			"name":       project.Name,
		})
	})
	if err != nil {
		return models.Project{}, storeErr(err, msgProjectNotFound, msgNameInUse)
	}
	return project, nil
}

// Delete removes the project and, through the cascade, its scans.
func (s *ProjectService) Delete(ctx context.Context, user models.User, id string) (models.Project, error) {
	var project models.Project
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		project, err = tx.Projects().FindForUser(ctx, user.ID, id)
		if err != nil {
			return err
		}
		if err := tx.Projects().Delete(ctx, user.ID, project.ID); err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityProject, models.ActivityDeleted, map[string]any{
			"project_id": project.ID,
			"name":       project.Name,
		})
	})
	if err != nil {
		return models.Project{}, storeErr(err, msgProjectNotFound, "")
	}
	return project, nil
}

// checkFileOwner rejects files uploaded by someone else. Files without an
// uploader are shared.
func checkFileOwner(ctx context.Context, tx repository.Store, user models.User, fileID *string) error {
	if fileID == nil {
		return nil
	}
	file, err := tx.Files().GetByID(ctx, *fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(msgFileNotFound)
		}
		return err
	}
	if file.UserID != nil && *file.UserID != user.ID {
		return apperr.NotFound(msgFileNotFound)
	}
	return nil
}
