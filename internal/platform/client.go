// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/*
client.go - Core Ad Platform API Client

This file provides the Client struct and the retrying HTTP layer used by the
asynchronous report protocol in report.go.

Resilience mechanisms:
  - Retries: up to MaxRetries attempts on transient statuses (408, 409, 425,
    429, 5xx) and network errors, exponential backoff doubling from
    RetryBaseDelay, Retry-After honored when present
  - Outbound rate limiting: golang.org/x/time/rate limiter below the
    platform's published request budget
  - Circuit breaker: see circuit_breaker.go
  - Context: all methods accept context for cancellation

Every response is logged with the platform's rate-limit usage headers when
present. This is an observability contract for external monitoring, not a
correctness one.
*/

//nolint:staticcheck // File documentation, not package doc
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/metrics"
)

// maxErrorBodySize limits the response body read for error reporting.
// Prevents unbounded memory allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// usageHeaders are the platform's rate-limit/usage headers, logged on every
// response when present.
var usageHeaders = []string{
	"x-business-use-case-usage",
	"x-ad-account-usage",
	"x-app-usage",
}

// readBodyForError reads the response body for error reporting (max 64KB).
// One extra byte is read past the limit to tell an exactly-64KB body from a
// truncated one.
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) > maxErrorBodySize {
		return append(body[:maxErrorBodySize], []byte("\n... (truncated)")...)
	}
	return body
}

// transientStatus reports whether an HTTP status code is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, // 408
		http.StatusConflict,        // 409
		http.StatusTooEarly,        // 425
		http.StatusTooManyRequests: // 429
		return true
	}
	return code >= 500
}

// Client handles communication with the ad platform's reporting API.
//
// Thread safety: safe for concurrent use; each request creates its own
// http.Request and the rate limiter is internally synchronized.
type Client struct {
	baseURL        string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
	pollInterval   time.Duration
	pollTimeout    time.Duration
	pageSize       int
	limiter        *rate.Limiter
}

// NewClient creates a new platform API client from configuration.
func NewClient(cfg *config.PlatformConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		pollInterval:   cfg.PollInterval,
		pollTimeout:    cfg.PollTimeout,
		pageSize:       cfg.PageSize,
		limiter:        limiter,
	}
}

// doRequestWithRetry performs an HTTP request with retries on transient
// statuses and network errors. Backoff is exponential from retryBaseDelay,
// doubling per attempt; a Retry-After header overrides the computed delay.
// The body is replayed per attempt from the given byte slice.
//
// On success the caller owns the response body. On exhausted retries the last
// error (or a synthesized error from the last non-2xx body) is returned -
// never silently swallowed.
func (c *Client) doRequestWithRetry(ctx context.Context, method, reqURL, token string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		var reqBody io.Reader = http.NoBody
		if len(body) > 0 {
			reqBody = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
		} else {
			c.logResponse(req.Method, resp)

			if !transientStatus(resp.StatusCode) {
				return resp, nil
			}

			metrics.PlatformRequestRetries.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			lastErr = newAPIError(resp)
			_ = resp.Body.Close()
		}

		if attempt == c.maxRetries {
			break
		}

		// Exponential backoff: base, 2x, 4x, ...
		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))

		// Honor Retry-After (RFC 6585) when the platform sent one
		if resp != nil {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
					delay = seconds
				}
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// logResponse logs response metadata including the platform's usage headers.
func (c *Client) logResponse(method string, resp *http.Response) {
	evt := logging.Debug().
		Str("method", method).
		Int("status", resp.StatusCode)
	for _, h := range usageHeaders {
		if v := resp.Header.Get(h); v != "" {
			evt = evt.Str(h, v)
		}
	}
	evt.Msg("Platform API response")
}

// getJSON performs a GET through the retry layer and decodes the 2xx response
// into result. Non-2xx responses become *APIError. The op label tags the
// request duration metric: "start", "poll" or "fetch".
func (c *Client) getJSON(ctx context.Context, op, reqURL, token string, result interface{}) error {
	start := time.Now()
	resp, err := c.doRequestWithRetry(ctx, http.MethodGet, reqURL, token, nil)
	metrics.PlatformRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON performs a POST through the retry layer and decodes the 2xx
// response into result.
func (c *Client) postJSON(ctx context.Context, op, reqURL, token string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	resp, err := c.doRequestWithRetry(ctx, http.MethodPost, reqURL, token, body)
	metrics.PlatformRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
