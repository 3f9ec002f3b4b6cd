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
	msgScanNotFound  = "Scan not found"
	msgScanFinalized = "Scan already finalized"
)

// ScanQueue hands a freshly created scan to the processing pipeline.
type ScanQueue interface {
	EnqueueScan(ctx context.Context, scan models.Scan, input models.File) error
}

type ScanService struct {
	store      repository.Store
	activities *ActivityService
	notifier   Notifier
	queue      ScanQueue
	bucket     string
	log        zerolog.Logger
}

func NewScanService(store repository.Store, activities *ActivityService, notifier Notifier, queue ScanQueue, bucket string, log zerolog.Logger) *ScanService {
	return &ScanService{
		store:      store,
		activities: activities,
		notifier:   notifier,
		queue:      queue,
		bucket:     bucket,
		log:        log,
	}
}

type CreateScanInput struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	ProjectID   string `json:"project_id" validate:"required"`
	InputFileID string `json:"input_file_id" validate:"required"`
}

type UpdateScanInput struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// CallbackInput is what the processing pipeline reports for a scan.
type CallbackInput struct {
	Status   models.ScanStatus `json:"status" validate:"required,oneof=Completed Failed"`
	SplatKey string            `json:"splat_key" validate:"required_if=Status Completed"`
	SplatURL string            `json:"splat_url" validate:"required_if=Status Completed"`
	Bucket   string            `json:"bucket"`
	Mimetype string            `json:"mimetype"`
	Size     int64             `json:"size" validate:"min=0"`
	Error    string            `json:"error"`
}

func (s *ScanService) Find(ctx context.Context, user models.User, slugOrID string) (models.Scan, error) {
	scan, err := s.store.Scans().FindForUser(ctx, user.ID, slugOrID)
	if err != nil {
		return models.Scan{}, storeErr(err, msgScanNotFound, "")
	}
	return scan, nil
}

func (s *ScanService) ListByProject(ctx context.Context, user models.User, projectID string, opts ListOptions) (Page[models.Scan], error) {
	opts, query, err := opts.normalize()
	if err != nil {
		return Page[models.Scan]{}, err
	}
	project, err := s.store.Projects().FindForUser(ctx, user.ID, projectID)
	if err != nil {
		return Page[models.Scan]{}, storeErr(err, msgProjectNotFound, "")
	}
	items, total, err := s.store.Scans().ListByProject(ctx, project.ID, query)
	if err != nil {
		return Page[models.Scan]{}, apperr.Internal(err)
	}
	return newPage(items, total, opts), nil
}

// Create stores the scan in Preparing state and queues it for processing.
// A failed enqueue is logged; the scan stays Preparing.
func (s *ScanService) Create(ctx context.Context, user models.User, input CreateScanInput) (models.Scan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.Scan{}, err
	}
	scanSlug := slug.Make(input.Name)
	if scanSlug == "" {
		return models.Scan{}, apperr.Validation(map[string]string{"name": "name must contain letters or digits"})
	}

	var (
		scan      models.Scan
		inputFile models.File
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		project, err := tx.Projects().FindForUser(ctx, user.ID, input.ProjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound(msgProjectNotFound)
			}
			return err
		}
		if err := checkFileOwner(ctx, tx, user, &input.InputFileID); err != nil {
			return err
		}
		if inputFile, err = tx.Files().GetByID(ctx, input.InputFileID); err != nil {
			return err
		}
		if inputFile.Type == models.FileTypeSplat {
			return apperr.Validation(map[string]string{"input_file_id": "input_file_id must reference an image or video"})
		}

		scan = models.Scan{
			ID:          ids.New(),
			Name:        input.Name,
			Slug:        scanSlug,
			Status:      models.ScanStatusPreparing,
			InputFileID: inputFile.ID,
			ProjectID:   project.ID,
			UserID:      user.ID,
		}
		if err := tx.Scans().Create(ctx, scan); err != nil {
			return err
		}
		if scan, err = tx.Scans().GetByID(ctx, scan.ID); err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityScan, models.ActivityCreated, map[string]any{
			"scan_id":    scan.ID,
			"project_id": project.ID,
			"name":       scan.Name,
		})
	})
	if err != nil {
		return models.Scan{}, storeErr(err, msgScanNotFound, msgNameInUse)
	}

	s.notifier.Send(ctx, NotificationInput{
		UserID:   user.ID,
		Title:    "Scan " + scan.Name + " created",
		Type:     models.NotificationScanCreated,
		Metadata: map[string]any{"scan_id": scan.ID, "project_id": scan.ProjectID, "slug": scan.Slug},
	})

	if err := s.queue.EnqueueScan(ctx, scan, inputFile); err != nil {
		s.log.Error().Err(err).Str("scan_id", scan.ID).Msg("enqueue scan processing failed")
	}
	return scan, nil
}

func (s *ScanService) Update(ctx context.Context, user models.User, id string, input UpdateScanInput) (models.Scan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.Scan{}, err
	}

	var scan models.Scan
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if scan, err = tx.Scans().FindForUser(ctx, user.ID, id); err != nil {
			return err
		}
		scan.Name = input.Name
		if err := tx.Scans().Update(ctx, scan); err != nil {
			return err
		}
		if scan, err = tx.Scans().GetByID(ctx, scan.ID); err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityScan, models.ActivityUpdated, map[string]any{
			"scan_id":    scan.ID,
			"project_id": scan.ProjectID,
			"name":       scan.Name,
		})
	})
	if err != nil {
		return models.Scan{}, storeErr(err, msgScanNotFound, "")
	}
	return scan, nil
}

func (s *ScanService) Delete(ctx context.Context, user models.User, id string) (models.Scan, error) {
	var scan models.Scan
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if scan, err = tx.Scans().FindForUser(ctx, user.ID, id); err != nil {
			return err
		}
		if err := tx.Scans().Delete(ctx, user.ID, scan.ID); err != nil {
			return err
		}
		return s.activities.Record(ctx, tx, user.ID, models.ActivityEntityScan, models.ActivityDeleted, map[string]any{
			"scan_id":    scan.ID,
			"project_id": scan.ProjectID,
			"name":       scan.Name,
		})
	})
	if err != nil {
		return models.Scan{}, storeErr(err, msgScanNotFound, "")
	}
	return scan, nil
}

// Complete applies the pipeline's verdict. Only the first callback for a
// scan is accepted; later ones fail with a conflict.
func (s *ScanService) Complete(ctx context.Context, scanID string, input CallbackInput) (models.Scan, error) {
	if err := validation.Struct(input); err != nil {
		return models.Scan{}, err
	}

	var scan models.Scan
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Scans().GetByID(ctx, scanID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return repository.ErrScanFinalized
		}

		var splatID *string
		if input.Status == models.ScanStatusCompleted {
			bucket := input.Bucket
			if bucket == "" {
				bucket = s.bucket
			}
			mimetype := input.Mimetype
			if mimetype == "" {
				mimetype = "application/octet-stream"
			}
			userID := current.UserID
			splat := models.File{
				ID:           ids.New(),
				UserID:       &userID,
				Name:         current.Name + ".splat",
				Key:          input.SplatKey,
				Bucket:       bucket,
				URL:          input.SplatURL,
				Type:         models.FileTypeSplat,
				Mimetype:     mimetype,
				Size:         input.Size,
				ThumbnailURL: input.SplatURL,
			}
			if err := tx.Files().Create(ctx, splat); err != nil {
				return err
			}
			splatID = &splat.ID
		}

		if scan, err = tx.Scans().Finalize(ctx, scanID, input.Status, splatID); err != nil {
			return err
		}

		activityType := models.ActivityCompleted
		if input.Status == models.ScanStatusFailed {
			activityType = models.ActivityFailed
		}
		return s.activities.Record(ctx, tx, scan.UserID, models.ActivityEntityScan, activityType, map[string]any{
			"scan_id":    scan.ID,
			"project_id": scan.ProjectID,
			"name":       scan.Name,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrScanFinalized) {
			return models.Scan{}, apperr.Conflict(msgScanFinalized)
		}
		return models.Scan{}, storeErr(err, msgScanNotFound, "Splat file already registered")
	}

	notification := NotificationInput{
		UserID:   scan.UserID,
		Title:    "Scan " + scan.Name + " is ready",
		Type:     models.NotificationScanCompleted,
		Metadata: map[string]any{"scan_id": scan.ID, "project_id": scan.ProjectID, "slug": scan.Slug},
	}
	if scan.Status == models.ScanStatusFailed {
		notification.Title = "Scan " + scan.Name + " failed"
		notification.Type = models.NotificationScanFailed
		if input.Error != "" {
			notification.Metadata["error"] = input.Error
		}
	}
	s.notifier.Send(ctx, notification)

	s.log.Info().Str("scan_id", scan.ID).Str("status", string(scan.Status)).Msg("scan finalized")
	return scan, nil
}
