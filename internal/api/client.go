// Package api is the typed gateway to the remote payments service: one
// method per operation, bearer auth from a caller-supplied token, and all
// failure shapes normalized into a single *Error taxonomy.
package api

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

	"github.com/google/uuid"

	coreconfig "github.com/veltapay/paybot/core/config"
	"github.com/veltapay/paybot/core/logger"
	"github.com/veltapay/paybot/core/telegram"
)

const maxErrorBody = 64 << 10

// Client issues requests against the payments gateway.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a gateway client from config. Transient network failures
// are retried at the transport level before surfacing as transport errors.
func NewClient(cfg coreconfig.APIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc: &http.Client{
			Timeout: timeout,
			Transport: &telegram.RetryTransport{
				MaxRetries: 2,
				Backoff:    time.Second,
			},
		},
	}
}

// do runs one gateway round trip. token may be empty for unauthenticated
// calls. out is decoded from the response body when non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.LogEvent(ctx, logger.API, slog.LevelWarn, "api.transport_error",
			slog.String("status", "error"),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
		)
		return transportError()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := normalizeError(resp.StatusCode, raw)
		logger.LogEvent(ctx, logger.API, slog.LevelWarn, "api.call_failed",
			slog.String("status", "error"),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_code", resp.StatusCode),
			slog.String("err", logger.SanitizeLimit(apiErr.Message, 256)),
			slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
		)
		return apiErr
	}

	logger.LogEvent(ctx, logger.API, slog.LevelDebug, "api.call",
		slog.String("status", "ok"),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_code", resp.StatusCode),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
