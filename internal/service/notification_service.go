package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/events"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
)

// Pusher delivers a stored notification to the user's live connections.
type Pusher interface {
	Push(userID string, n models.Notification)
}

type NotificationInput struct {
	UserID   string
	Title    string
	Type     models.NotificationType
	Metadata map[string]any
}

type NotificationService struct {
	store  repository.Store
	bus    *events.Bus
	pusher Pusher
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewNotificationService(store repository.Store, bus *events.Bus, pusher Pusher, window time.Duration, log zerolog.Logger) *NotificationService {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &NotificationService{
		store:  store,
		bus:    bus,
		pusher: pusher,
		window: window,
		log:    log,
		now:    time.Now,
	}
}

// Send publishes the notification and returns immediately.
func (s *NotificationService) Send(ctx context.Context, input NotificationInput) {
	metadata, err := json.Marshal(input.Metadata)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", input.UserID).Msg("encode notification metadata failed")
		return
	}
	if input.Metadata == nil {
		metadata = []byte(`{}`)
	}

	s.bus.Publish(models.Notification{
		ID:        ids.New(),
		Title:     input.Title,
		Type:      input.Type,
		Metadata:  metadata,
		UserID:    input.UserID,
		CreatedAt: s.now().UTC(),
	})
}

// Persist is the bus listener.
func (s *NotificationService) Persist(ctx context.Context, n models.Notification) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		return tx.Notifications().Create(ctx, n)
	})
	if err != nil {
		return err
	}
	if s.pusher != nil {
		s.pusher.Push(n.UserID, n)
	}
	return nil
}

// FindAll lists the trailing window of notifications, newest first.
func (s *NotificationService) FindAll(ctx context.Context, user models.User) ([]models.Notification, error) {
	items, err := s.store.Notifications().ListSince(ctx, user.ID, s.now().Add(-s.window))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return items, nil
}

// Read marks every unread notification as read and returns the refreshed
// list. Notifications arriving between the two steps come back unread.
func (s *NotificationService) Read(ctx context.Context, user models.User) ([]models.Notification, error) {
	updated, err := s.store.Notifications().MarkAllRead(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Debug().Str("user_id", user.ID).Int64("updated", updated).Msg("notifications marked read")
	return s.FindAll(ctx, user)
}
