package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"scanhub/internal/models"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(8, zerolog.Nop())

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	go func() {
		bus.Run(context.Background(), func(_ context.Context, n models.Notification) error {
			mu.Lock()
			seen = append(seen, n.ID)
			mu.Unlock()
			return nil
		})
		close(done)
	}()

	assert.True(t, bus.Publish(models.Notification{ID: "a"}))
	assert.True(t, bus.Publish(models.Notification{ID: "b"}))
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bus did not stop after Close")
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1, zerolog.Nop())
	dropped := 0
	bus.OnDrop = func() { dropped++ }

	assert.True(t, bus.Publish(models.Notification{ID: "a"}))
	assert.False(t, bus.Publish(models.Notification{ID: "b"}))
	assert.Equal(t, 1, dropped)
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(4, zerolog.Nop())
	bus.Close()
	assert.False(t, bus.Publish(models.Notification{ID: "a"}))
}

func TestBus_HandlerErrorDoesNotStopLoop(t *testing.T) {
	bus := NewBus(4, zerolog.Nop())
	calls := make(chan string, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx, func(_ context.Context, n models.Notification) error {
		calls <- n.ID
		return errors.New("boom")
	})

	bus.Publish(models.Notification{ID: "a"})
	bus.Publish(models.Notification{ID: "b"})

	assert.Equal(t, "a", <-calls)
	assert.Equal(t, "b", <-calls)
}
