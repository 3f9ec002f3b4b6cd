package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/models"
	"scanhub/internal/pipeline"
	"scanhub/internal/queue"
	"scanhub/internal/repository"
	"scanhub/internal/service"
)

type Submitter interface {
	Submit(ctx context.Context, job pipeline.Job) error
}

type ScanFinalizer interface {
	Complete(ctx context.Context, scanID string, input service.CallbackInput) (models.Scan, error)
}

type Processor struct {
	pipeline  Submitter
	scans     ScanFinalizer
	store     repository.Store
	tokenTTL  time.Duration
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

type TaskPayload struct {
	Type        string `json:"type"`
	ScanID      string `json:"scan_id"`
	InputURL    string `json:"input_url"`
	CallbackURL string `json:"callback_url"`
}

func NewProcessor(submitter Submitter, scans ScanFinalizer, store repository.Store, tokenTTL, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		pipeline:  submitter,
		scans:     scans,
		store:     store,
		tokenTTL:  tokenTTL,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle returns an error only for failures worth retrying; the message
// then stays pending and is reclaimed later.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable task")
		return nil
	}

	switch payload.Type {
	case queue.TaskScanProcess:
		return p.handleScan(ctx, payload)
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleScan(ctx context.Context, payload TaskPayload) error {
	if payload.ScanID == "" {
		p.logger.Warn().Msg("scan task without scan_id")
		return nil
	}

	err := p.pipeline.Submit(ctx, pipeline.Job{
		ScanID:      payload.ScanID,
		InputURL:    payload.InputURL,
		CallbackURL: payload.CallbackURL,
	})
	if err == nil {
		p.logger.Info().Str("scan_id", payload.ScanID).Msg("scan submitted to pipeline")
		return nil
	}
	if !errors.Is(err, pipeline.ErrRejected) {
		return fmt.Errorf("submit scan %s: %w", payload.ScanID, err)
	}

	p.logger.Warn().Err(err).Str("scan_id", payload.ScanID).Msg("pipeline rejected scan")
	return p.failScan(ctx, payload.ScanID, err.Error())
}

// Exhausted gives up on a task the consumer kept retrying. A scan job
// finalizes the scan as Failed; a cleanup waits for the next schedule.
func (p *Processor) Exhausted(ctx context.Context, msg redis.XMessage, deliveries int64) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil || payload.Type != queue.TaskScanProcess || payload.ScanID == "" {
		p.logger.Warn().Str("message_id", msg.ID).Str("type", payload.Type).Msg("dropping exhausted task")
		return nil
	}
	return p.failScan(ctx, payload.ScanID, fmt.Sprintf("pipeline unavailable after %d attempts", deliveries))
}

// failScan ignores scans that are gone or already final.
func (p *Processor) failScan(ctx context.Context, scanID, reason string) error {
	_, err := p.scans.Complete(ctx, scanID, service.CallbackInput{
		Status: models.ScanStatusFailed,
		Error:  reason,
	})
	if err != nil && !apperr.Is(err, apperr.KindConflict) && !apperr.Is(err, apperr.KindNotFound) {
		return fmt.Errorf("mark scan %s failed: %w", scanID, err)
	}
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	now := p.now()

	tokens, err := p.store.Tokens().DeleteExpired(ctx, now.Add(-p.tokenTTL))
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	notifications, err := p.store.Notifications().DeleteOlderThan(ctx, now.Add(-p.retention))
	if err != nil {
		return fmt.Errorf("delete old notifications: %w", err)
	}

	p.logger.Info().
		Int64("tokens", tokens).
		Int64("notifications", notifications).
		Msg("cleanup finished")
	return nil
}
