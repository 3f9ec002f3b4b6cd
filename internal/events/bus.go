// Package events carries notifications from the services that raise them
// to the listener that persists and delivers them.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"scanhub/internal/models"
)

type Handler func(ctx context.Context, n models.Notification) error

// Bus is a buffered in-process channel. Publish never blocks: when the
// buffer is full the notification is dropped and logged.
type Bus struct {
	ch     chan models.Notification
	log    zerolog.Logger
	once   sync.Once
	closed chan struct{}
	// OnDrop is called for every notification dropped on a full buffer.
	OnDrop func()
}

func NewBus(size int, log zerolog.Logger) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{
		ch:     make(chan models.Notification, size),
		log:    log,
		closed: make(chan struct{}),
	}
}

func (b *Bus) Publish(n models.Notification) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.ch <- n:
		return true
	default:
		b.log.Warn().
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("notification buffer full, dropping")
		if b.OnDrop != nil {
			b.OnDrop()
		}
		return false
	}
}

// Run feeds published notifications to handle until ctx is cancelled or the
// bus is closed. Pending notifications are drained on Close.
func (b *Bus) Run(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.ch:
			b.dispatch(ctx, handle, n)
		case <-b.closed:
			for {
				select {
				case n := <-b.ch:
					b.dispatch(ctx, handle, n)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, handle Handler, n models.Notification) {
	if err := handle(ctx, n); err != nil {
		b.log.Error().
			Err(err).
			Str("notification_id", n.ID).
			Str("user_id", n.UserID).
			Msg("notification listener failed")
	}
}

func (b *Bus) Close() {
	b.once.Do(func() { close(b.closed) })
}
