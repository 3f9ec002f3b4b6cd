package service

import (
	"context"
	"encoding/json"

	"scanhub/internal/apperr"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
)

type ActivityService struct {
	store repository.Store
}

func NewActivityService(store repository.Store) *ActivityService {
	return &ActivityService{store: store}
}

// Record appends an activity through tx so it commits or rolls back with
// the mutation it describes.
func (s *ActivityService) Record(ctx context.Context, tx repository.Store, userID string, entity models.ActivityEntity, typ models.ActivityType, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return tx.Activities().Create(ctx, models.Activity{
		ID:       ids.New(),
		Entity:   entity,
		Type:     typ,
		Metadata: raw,
		UserID:   userID,
	})
}

func (s *ActivityService) List(ctx context.Context, user models.User, opts ListOptions) (Page[models.Activity], error) {
	opts, query, err := opts.normalize()
	if err != nil {
		return Page[models.Activity]{}, err
	}
	items, total, err := s.store.Activities().ListByUser(ctx, user.ID, query)
	if err != nil {
		return Page[models.Activity]{}, apperr.Internal(err)
	}
	return newPage(items, total, opts), nil
}
