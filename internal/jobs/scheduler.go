package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CleanupEnqueuer is implemented by queue.Producer.
type CleanupEnqueuer interface {
	EnqueueCleanup(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	queue   CleanupEnqueuer
	spec    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewScheduler takes a six-field cron expression (seconds first).
func NewScheduler(queue CleanupEnqueuer, spec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		queue:   queue,
		spec:    spec,
		timeout: 5 * time.Second,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.queue.EnqueueCleanup(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
		return
	}
	s.log.Debug().Msg("cleanup enqueued")
}
