// Package pipeline talks to the external 3D reconstruction service.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"scanhub/internal/security"
)

// ErrRejected marks a job the pipeline refused outright; retrying it will
// not help.
var ErrRejected = errors.New("pipeline rejected job")

type Job struct {
	ScanID      string `json:"scan_id"`
	InputURL    string `json:"input_url"`
	CallbackURL string `json:"callback_url"`
}

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Submit posts a signed job to the pipeline's /jobs endpoint.
func (c *Client) Submit(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	security.SignRequest(req, c.secret, body, uuid.NewString(), c.now())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return fmt.Errorf("pipeline returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
}
