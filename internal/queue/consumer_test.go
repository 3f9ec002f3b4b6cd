package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// ackRecorder only implements XAck; the consumer paths under test call
// nothing else.
type ackRecorder struct {
	StreamClient
	mu    sync.Mutex
	acked []string
}

func (a *ackRecorder) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Handle(ctx context.Context, msg redis.XMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockHandler) Exhausted(ctx context.Context, msg redis.XMessage, deliveries int64) error {
	return m.Called(ctx, msg, deliveries).Error(0)
}

func newTestConsumer(handler MessageHandler) (*Consumer, *ackRecorder) {
	client := &ackRecorder{}
	return NewConsumer(client, "scans:process", "scan-workers", "worker-1", 0, 3, zerolog.Nop(), handler), client
}

func TestRetry_BelowCapReprocesses(t *testing.T) {
	handler := &mockHandler{}
	msg := redis.XMessage{ID: "1-0"}
	handler.On("Handle", mock.Anything, msg).Return(nil).Once()

	c, client := newTestConsumer(handler)
	c.retry(context.Background(), msg, 2)

	handler.AssertExpectations(t)
	handler.AssertNotCalled(t, "Exhausted", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"1-0"}, client.acked)
}

func TestRetry_FailingHandlerStaysPending(t *testing.T) {
	handler := &mockHandler{}
	msg := redis.XMessage{ID: "1-0"}
	handler.On("Handle", mock.Anything, msg).Return(errors.New("pipeline 503")).Once()

	c, client := newTestConsumer(handler)
	c.retry(context.Background(), msg, 1)

	assert.Empty(t, client.acked)
}

func TestRetry_AtCapGivesUpAndAcks(t *testing.T) {
	handler := &mockHandler{}
	msg := redis.XMessage{ID: "1-0"}
	handler.On("Exhausted", mock.Anything, msg, int64(3)).Return(nil).Once()

	c, client := newTestConsumer(handler)
	c.retry(context.Background(), msg, 3)

	handler.AssertExpectations(t)
	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"1-0"}, client.acked)
}

func TestRetry_GiveUpFailureKeepsMessage(t *testing.T) {
	handler := &mockHandler{}
	msg := redis.XMessage{ID: "1-0"}
	handler.On("Exhausted", mock.Anything, msg, int64(4)).Return(errors.New("db down")).Once()

	c, client := newTestConsumer(handler)
	c.retry(context.Background(), msg, 4)

	handler.AssertExpectations(t)
	assert.Empty(t, client.acked)
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(&ackRecorder{}, "s", "g", "c", 0, 0, zerolog.Nop(), &mockHandler{})
	assert.Equal(t, int64(5), c.maxDeliveries)
	assert.Positive(t, c.claimInterval)
}
