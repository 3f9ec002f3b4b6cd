package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"scanhub/internal/models"
)

const (
	TaskScanProcess = "scan.process"
	TaskCleanup     = "cleanup"
)

// Producer appends tasks to the worker stream.
type Producer struct {
	client      *redis.Client
	stream      string
	callbackURL string
}

// NewProducer takes the API's public base URL; scan callbacks are posted to
// <publicURL>/scans/<id>/callback.
func NewProducer(client *redis.Client, stream string, publicURL string) *Producer {
	return &Producer{
		client:      client,
		stream:      stream,
		callbackURL: strings.TrimSuffix(publicURL, "/"),
	}
}

func (p *Producer) EnqueueScan(ctx context.Context, scan models.Scan, input models.File) error {
	return p.add(ctx, map[string]any{
		"type":         TaskScanProcess,
		"scan_id":      scan.ID,
		"input_url":    input.URL,
		"callback_url": fmt.Sprintf("%s/scans/%s/callback", p.callbackURL, scan.ID),
	})
}

func (p *Producer) EnqueueCleanup(ctx context.Context) error {
	return p.add(ctx, map[string]any{"type": TaskCleanup})
}

func (p *Producer) add(ctx context.Context, values map[string]any) error {
	if p.client == nil {
		return fmt.Errorf("queue not configured")
	}
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	return err
}
