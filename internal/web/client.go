package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a GraphQL error the API returned for the operation.
type APIError struct {
	Message string
	Code    string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client calls the API's GraphQL endpoint on behalf of a session.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(apiURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(apiURL, "/") + "/graphql",
		http:     &http.Client{Timeout: timeout},
	}
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Do runs one operation and decodes data into out. An UNAUTHORIZED error
// from the API maps to ErrUnauthorized.
func (c *Client) Do(ctx context.Context, token, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	var decoded gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if len(decoded.Errors) > 0 {
		first := decoded.Errors[0]
		if first.Extensions.Code == "UNAUTHORIZED" {
			return ErrUnauthorized
		}
		return &APIError{Message: first.Message, Code: first.Extensions.Code, Fields: first.Extensions.Fields}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
