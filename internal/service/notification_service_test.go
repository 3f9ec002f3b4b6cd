package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/events"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository/memory"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushed []models.Notification
}

func (p *recordingPusher) Push(_ string, n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

func newNotificationService(t *testing.T) (*NotificationService, *memory.Store, *recordingPusher, *events.Bus) {
	t.Helper()
	store := memory.New()
	bus := events.NewBus(16, nopLogger())
	pusher := &recordingPusher{}
	return NewNotificationService(store, bus, pusher, 7*24*time.Hour, nopLogger()), store, pusher, bus
}

func insertNotification(t *testing.T, store *memory.Store, user models.User, title string, createdAt time.Time, read bool) {
	t.Helper()
	require.NoError(t, store.Notifications().Create(context.Background(), models.Notification{
		ID:        ids.New(),
		Title:     title,
		Type:      models.NotificationScanCompleted,
		Read:      read,
		Metadata:  []byte(`{}`),
		UserID:    user.ID,
		CreatedAt: createdAt,
	}))
}

func TestNotificationSend_PersistsThroughBus(t *testing.T) {
	svc, store, pusher, bus := newNotificationService(t)
	user := seedUser(t, store, "ada@example.com", "password123", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx, svc.Persist)

	svc.Send(ctx, NotificationInput{
		UserID:   user.ID,
		Title:    "Project Garden created",
		Type:     models.NotificationProjectCreated,
		Metadata: map[string]any{"project_id": "p1"},
	})

	assert.Eventually(t, func() bool { return pusher.count() == 1 }, time.Second, 10*time.Millisecond)

	items, err := svc.FindAll(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Project Garden created", items[0].Title)
	assert.False(t, items[0].Read)
	assert.JSONEq(t, `{"project_id":"p1"}`, string(items[0].Metadata))
}

func TestNotificationFindAll_WindowAndOrder(t *testing.T) {
	svc, store, _, _ := newNotificationService(t)
	user := seedUser(t, store, "ada@example.com", "password123", true)
	other := seedUser(t, store, "bob@example.com", "password123", true)
	now := time.Now().UTC()

	insertNotification(t, store, user, "old", now.Add(-8*24*time.Hour), false)
	insertNotification(t, store, user, "older", now.Add(-2*time.Hour), false)
	insertNotification(t, store, user, "newest", now.Add(-time.Minute), false)
	insertNotification(t, store, other, "not mine", now, false)

	items, err := svc.FindAll(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "newest", items[0].Title)
	assert.Equal(t, "older", items[1].Title)
}

func TestNotificationRead_IsIdempotent(t *testing.T) {
	svc, store, _, _ := newNotificationService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)
	other := seedUser(t, store, "bob@example.com", "password123", true)
	now := time.Now().UTC()

	insertNotification(t, store, user, "first", now.Add(-time.Hour), false)
	insertNotification(t, store, user, "second", now.Add(-time.Minute), false)
	insertNotification(t, store, other, "bob's", now, false)

	items, err := svc.Read(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Title)
	for _, n := range items {
		assert.True(t, n.Read)
	}

	again, err := svc.Read(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, items, again)

	updated, err := store.Notifications().MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, updated)

	bobs, err := svc.FindAll(ctx, other)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.False(t, bobs[0].Read)
}
