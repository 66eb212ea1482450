// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package glm is the HTTP client for the GLM chat backend.
//
// Every JSON endpoint answers with an Envelope whose Code is 0 on success.
// The streaming endpoint answers with Server-Sent Events; see Consume.
package glm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/glmchat-tui/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Configuration constants for the GLM backend.
const (
	// DefaultBaseURL is where the backend listens by default.
	DefaultBaseURL = "http://localhost:3000/api"

	// DefaultTimeout bounds blocking requests and the wait for stream headers.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of extra attempts for idempotent requests.
	DefaultMaxRetries = 2

	retryBaseDelay = 300 * time.Millisecond
	retryMaxDelay  = 5 * time.Second

	// MaxResponseSize caps JSON response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "glmchat/0.3.0"
)

// Client talks to the /glm endpoints.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	log          *zap.Logger
	metrics      *telemetry.Metrics
}

// NewClient creates a client for baseURL with default settings.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: DefaultMaxRetries,
		log:        zap.NewNop(),
	}
	c.WithTimeout(DefaultTimeout)
	return c
}

// WithTimeout sets the request timeout. Streams use it only for the
// response headers; the body is bounded by the caller's context.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{
		Transport: newTransport(0),
		Timeout:   timeout,
	}
	c.streamClient = &http.Client{
		Transport: newTransport(timeout),
	}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithRateLimit limits outgoing requests. A non-positive rps disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithMaxRetries sets the retry count for idempotent requests.
func (c *Client) WithMaxRetries(n int) *Client {
	if n < 0 {
		n = 0
	}
	c.maxRetries = n
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(log *zap.Logger) *Client {
	if log != nil {
		c.log = log.Named("glm")
	}
	return c
}

// WithMetrics sets the metrics sink.
func (c *Client) WithMetrics(m *telemetry.Metrics) *Client {
	c.metrics = m
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Chat sends a message and waits for the full reply.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (string, error) {
	return call[string](ctx, c, telemetry.EndpointChat, http.MethodPost, "/glm/chat",
		ChatRequest{SessionID: sessionID, Message: message}, false)
}

// OpenStream starts a streaming reply and returns the response body, already
// transcoded to UTF-8. The caller must close it.
func (c *Client) OpenStream(ctx context.Context, sessionID, message string) (io.ReadCloser, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/glm/chat/stream", ChatRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.metrics.RecordRequest(telemetry.EndpointStream, outcomeOf(err), time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.metrics.RecordRequest(telemetry.EndpointStream, telemetry.OutcomeError, time.Since(start))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		c.metrics.RecordRequest(telemetry.EndpointStream, telemetry.OutcomeError, time.Since(start))
		return nil, ErrBodyNotReadable
	}

	c.metrics.RecordRequest(telemetry.EndpointStream, telemetry.OutcomeOK, time.Since(start))
	c.log.Debug("STREAM_OPEN", zap.String("session", sessionID), zap.Duration("latency", time.Since(start)))
	return DecodeBody(resp.Body, resp.Header.Get("Content-Type")), nil
}

// Stream starts a streaming reply and consumes it. See Consume.
func (c *Client) Stream(ctx context.Context, sessionID, message string) (<-chan StreamEvent, error) {
	body, err := c.OpenStream(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	return Consume(ctx, body), nil
}

// History fetches the stored conversation for a session.
func (c *Client) History(ctx context.Context, sessionID string) (*History, error) {
	path := "/glm/history?sessionId=" + url.QueryEscape(sessionID)
	h, err := call[*History](ctx, c, telemetry.EndpointHistory, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = &History{}
	}
	return h, nil
}

// ClearHistory deletes the stored conversation for a session.
func (c *Client) ClearHistory(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	path := "/glm/history?sessionId=" + url.QueryEscape(sessionID)
	_, err := call[json.RawMessage](ctx, c, telemetry.EndpointClear, http.MethodDelete, path, nil, false)
	return err
}

// SetCharacter installs a persona for a session.
func (c *Client) SetCharacter(ctx context.Context, req CharacterRequest) error {
	_, err := call[json.RawMessage](ctx, c, telemetry.EndpointCharacter, http.MethodPost, "/glm/character", req, false)
	return err
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// call performs a JSON request and unwraps the envelope. Idempotent requests
// are retried with exponential backoff on transient failures.
func call[T any](ctx context.Context, c *Client, endpoint, method, path string, body any, idempotent bool) (T, error) {
	var zero T
	start := time.Now()

	attempts := 1
	if idempotent {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.log.Debug("REQUEST_RETRY", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				c.metrics.RecordRequest(endpoint, telemetry.OutcomeCancelled, time.Since(start))
				return zero, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		env, err := roundTrip[T](ctx, c, method, path, body)
		if err == nil {
			if apiErr := envelopeError(env.Code, env.Msg); apiErr != nil {
				c.metrics.RecordRequest(endpoint, telemetry.OutcomeRejected, time.Since(start))
				c.log.Info("REQUEST_REJECTED", zap.String("endpoint", endpoint), zap.Int("code", env.Code), zap.String("msg", env.Msg))
				return zero, apiErr
			}
			c.metrics.RecordRequest(endpoint, telemetry.OutcomeOK, time.Since(start))
			return env.Data, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	c.metrics.RecordRequest(endpoint, outcomeOf(lastErr), time.Since(start))
	c.log.Warn("REQUEST_FAILED", zap.String("endpoint", endpoint), zap.Error(lastErr))
	return zero, lastErr
}

func roundTrip[T any](ctx context.Context, c *Client, method, path string, body any) (Envelope[T], error) {
	var env Envelope[T]

	if err := c.limiter.Wait(ctx); err != nil {
		return env, err
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return env, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return env, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to parse response: %w", err)
	}
	return env, nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func backoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, context.Canceled):
		return telemetry.OutcomeCancelled
	default:
		return telemetry.OutcomeError
	}
}
