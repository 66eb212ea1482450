// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package glm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBodyNotReadable indicates a streaming response without a body.
	ErrBodyNotReadable = errors.New("response body is not readable")

	// ErrEventTooLarge indicates an SSE event above MaxEventSize.
	ErrEventTooLarge = errors.New("stream event too large")

	// ErrEmptySession indicates an operation that needs a session id got none.
	ErrEmptySession = errors.New("session id is empty")
)

// HTTPError is a transport-level non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// APIError is an envelope with a non-zero code.
type APIError struct {
	Code int
	Msg  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("request failed with code %d", e.Code)
}

// StreamError is returned when a stream fails after delivering some content.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// RemoteStreamError is an error the server sent inside the stream.
type RemoteStreamError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteStreamError) Error() string {
	return "server stream error: " + e.Message
}

func envelopeError(code int, msg string) error {
	if code == 0 {
		return nil
	}
	return &APIError{Code: code, Msg: msg}
}
