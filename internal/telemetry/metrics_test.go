// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest(EndpointChat, OutcomeOK, 20*time.Millisecond)
	m.RecordRequest(EndpointChat, OutcomeError, time.Second)
	m.StreamStarted()
	m.StreamChunk()
	m.StreamChunk()
	m.StreamFinished(OutcomeOK)
	m.Notified(NotifyCoalesced)

	out := scrape(t, reg)
	assert.Contains(t, out, `glmchat_requests_total{endpoint="chat",outcome="ok"} 1`)
	assert.Contains(t, out, `glmchat_requests_total{endpoint="chat",outcome="error"} 1`)
	assert.Contains(t, out, `glmchat_stream_chunks_total 2`)
	assert.Contains(t, out, `glmchat_streams_active 0`)
	assert.Contains(t, out, `glmchat_streams_total{outcome="ok"} 1`)
	assert.Contains(t, out, `glmchat_store_notifications_total{mode="coalesced"} 1`)
	assert.Contains(t, out, `glmchat_request_duration_seconds_count{endpoint="chat"} 2`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(EndpointHistory, OutcomeOK, time.Millisecond)
		m.StreamStarted()
		m.StreamChunk()
		m.FirstChunk(time.Millisecond)
		m.StreamFinished(OutcomeCancelled)
		m.Notified(NotifyImmediate)
		m.ActionDispatched("ADD_MESSAGE")
	})
}

func TestHandler_ExposesActions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ActionDispatched("ADD_MESSAGE")

	assert.Contains(t, scrape(t, reg), `glmchat_actions_total{type="ADD_MESSAGE"} 1`)
}
