// Package client talks to a running relay over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:3000"
	defaultTimeout = 60 * time.Second
)

// Response is the relay's reply body.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// APIError is a non-2xx reply from the relay.
type APIError struct {
	StatusCode int
	Response
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is a relay API client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	return NewWithClient(cfg, nil)
}

// NewWithClient uses the given HTTP client, e.g. one from httptest.
func NewWithClient(cfg Config, hc *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  cfg.Logger,
	}
}

// CleanNumber strips the "whatsapp:+" and "+" prefixes callers often carry
// over from other messaging APIs.
func CleanNumber(number string) string {
	number = strings.ReplaceAll(number, "whatsapp:+", "")
	return strings.ReplaceAll(number, "+", "")
}

// SendMessage asks the relay to send a text.
func (c *Client) SendMessage(ctx context.Context, number, message string) (*Response, error) {
	body := map[string]string{
		"number":  CleanNumber(number),
		"message": message,
	}
	return c.do(ctx, http.MethodPost, "/send-message", body)
}

// SendFile asks the relay to send a file that exists on the relay's host.
func (c *Client) SendFile(ctx context.Context, number, filePath, caption string) (*Response, error) {
	body := map[string]string{
		"number":   CleanNumber(number),
		"filePath": filePath,
	}
	if caption != "" {
		body["caption"] = caption
	}
	return c.do(ctx, http.MethodPost, "/send-file", body)
}

// Status reports whether the relay's session is ready.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/status", nil)
}

// Ready is a convenience wrapper around Status.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return resp.Status == "ready", nil
}

// WaitReady polls Ready every interval until the session is ready or ctx ends.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ready, err := c.Ready(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("session not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay not reachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr != nil {
			out.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Debug("relay call failed", "path", path, "status", resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Response: out}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &out, nil
}
