// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package glmtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glmchat-tui/internal/glm"
)

func TestWordChunks(t *testing.T) {
	assert.Equal(t, []string{"echo:", " hello", " world"}, WordChunks("echo: hello world"))
	assert.Nil(t, WordChunks(""))
}

func TestHandlerWith_CORS(t *testing.T) {
	srv := httptest.NewServer(New(nil).HandlerWith(ServeOptions{CORS: true}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+Prefix+"/glm/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHandlerWith_RateLimit(t *testing.T) {
	srv := httptest.NewServer(New(nil).HandlerWith(ServeOptions{RateLimit: 2}))
	defer srv.Close()

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := srv.Client().Get(srv.URL + Prefix + "/glm/history?sessionId=s-1")
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestHandleChat_RecordsTurn(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+Prefix+"/glm/chat", "application/json",
		strings.NewReader(`{"sessionId":"s-1","message":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env glm.Envelope[json.RawMessage]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Zero(t, env.Code)
	assert.Len(t, b.HistoryOf("s-1"), 2)
	assert.Equal(t, 1, b.RequestCount("chat"))
}

func TestHandleStream_Framing(t *testing.T) {
	for _, tc := range []struct {
		name        string
		lineFraming bool
		want        string
	}{
		{"blank line separated", false, "data: echo:\n\ndata:  hi\n\ndata: [DONE]\n\n"},
		{"line framed", true, "data: echo:\ndata:  hi\ndata: [DONE]\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := New(nil)
			b.Configure(func(b *Backend) { b.LineFraming = tc.lineFraming })
			srv := httptest.NewServer(b.Handler())
			defer srv.Close()

			resp, err := srv.Client().Post(srv.URL+Prefix+"/glm/chat/stream", "application/json",
				strings.NewReader(`{"sessionId":"s-1","message":"hi"}`))
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}
