package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQueue struct {
	calls atomic.Int32
	err   error
}

func (q *countingQueue) EnqueueCleanup(context.Context) error {
	q.calls.Add(1)
	return q.err
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingQueue{}, "not a cron", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestScheduler_NilQueueIsNoop(t *testing.T) {
	s := NewScheduler(nil, "not a cron", zerolog.Nop())
	assert.NoError(t, s.Start())
}

func TestScheduler_EnqueueCleanup(t *testing.T) {
	q := &countingQueue{}
	s := NewScheduler(q, "0 0 3 * * *", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	s.enqueueCleanup()
	q.err = errors.New("redis down")
	s.enqueueCleanup()

	assert.Equal(t, int32(2), q.calls.Load())
}
