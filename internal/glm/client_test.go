// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package glm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/glmchat-tui/internal/glm"
	"github.com/jeranaias/glmchat-tui/internal/glm/glmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*glmtest.Backend, *glm.Client) {
	t.Helper()
	backend := glmtest.New(nil)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	client := glm.NewClient(srv.URL + glmtest.Prefix).WithTimeout(5 * time.Second)
	return backend, client
}

func TestClient_Chat(t *testing.T) {
	backend, client := newBackend(t)

	reply, err := client.Chat(context.Background(), "s1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello", reply)

	history := backend.HistoryOf("s1")
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestClient_ChatHTTPError(t *testing.T) {
	backend, client := newBackend(t)
	backend.SetFail("chat", http.StatusBadGateway)

	_, err := client.Chat(context.Background(), "s1", "Hello")
	var httpErr *glm.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "HTTP error! status: 502", err.Error())
	assert.Equal(t, 1, backend.RequestCount("chat"), "POST is not retried")
}

func TestClient_EnvelopeRejection(t *testing.T) {
	backend, client := newBackend(t)
	backend.SetReject("character", 4001)

	err := client.SetCharacter(context.Background(), glm.CharacterRequest{SessionID: "s1", CharacterID: "doctor"})
	var apiErr *glm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "character rejected", err.Error())
}

func TestClient_HistoryRetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"sessionId":"s9","history":[{"role":"user","content":"hi","timestamp":null}]}}`))
	}))
	defer srv.Close()

	client := glm.NewClient(srv.URL)
	h, err := client.History(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "s9", h.SessionID)
	require.Len(t, h.History, 1)
	assert.Nil(t, h.History[0].Timestamp)
}

func TestClient_HistoryAndCharacter(t *testing.T) {
	backend, client := newBackend(t)
	ts := int64(1700000000000)
	backend.Seed("s2", []glm.HistoryItem{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "hi", Timestamp: &ts},
	}, &glm.CharacterInfo{CharacterID: "writer", CharacterDescription: "prose"})

	h, err := client.History(context.Background(), "s2")
	require.NoError(t, err)
	require.Len(t, h.History, 2)
	require.NotNil(t, h.Character)
	assert.Equal(t, "writer", h.Character.CharacterID)
	assert.Equal(t, time.UnixMilli(ts), h.History[1].Time(time.Time{}))
}

func TestClient_ClearHistory(t *testing.T) {
	backend, client := newBackend(t)
	_, err := client.Chat(context.Background(), "s3", "x")
	require.NoError(t, err)

	require.NoError(t, client.ClearHistory(context.Background(), "s3"))
	assert.Empty(t, backend.HistoryOf("s3"))

	assert.ErrorIs(t, client.ClearHistory(context.Background(), ""), glm.ErrEmptySession)
}

func TestClient_Stream(t *testing.T) {
	_, client := newBackend(t)

	events, err := client.Stream(context.Background(), "s4", "Hello world")
	require.NoError(t, err)

	var sb strings.Builder
	var done bool
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("unexpected error: %v", ev.Err)
		case ev.Done:
			done = true
		default:
			sb.WriteString(ev.Chunk)
		}
	}
	assert.True(t, done)
	assert.Equal(t, "echo: Hello world", sb.String())
}

func TestClient_StreamAbortMidway(t *testing.T) {
	backend, client := newBackend(t)
	backend.Configure(func(b *glmtest.Backend) { b.AbortAfter = 1 })

	body, err := client.OpenStream(context.Background(), "s5", "one two three")
	require.NoError(t, err)

	text, err := glm.Collect(context.Background(), body)
	require.Error(t, err)
	assert.Equal(t, "echo:", text)
}

func TestClient_StreamHTTPError(t *testing.T) {
	backend, client := newBackend(t)
	backend.SetFail("stream", http.StatusInternalServerError)

	_, err := client.Stream(context.Background(), "s6", "x")
	var httpErr *glm.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestClient_CancelledContext(t *testing.T) {
	_, client := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.History(ctx, "s7")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_RateLimit(t *testing.T) {
	_, client := newBackend(t)
	client.WithRateLimit(20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Chat(context.Background(), "s8", "x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
