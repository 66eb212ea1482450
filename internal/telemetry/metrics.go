// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Endpoint labels.
const (
	EndpointChat      = "chat"
	EndpointStream    = "chat_stream"
	EndpointHistory   = "history"
	EndpointClear     = "clear_history"
	EndpointCharacter = "character"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Notification modes.
const (
	NotifyImmediate = "immediate"
	NotifyCoalesced = "coalesced"
)

// Metrics holds every collector glmchat exports.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	StreamsActive     prometheus.Gauge
	StreamChunksTotal prometheus.Counter
	StreamsTotal      *prometheus.CounterVec
	FirstChunkLatency prometheus.Histogram
	NotifyTotal       *prometheus.CounterVec
	ActionsTotal      *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glmchat_requests_total",
				Help: "Backend requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glmchat_request_duration_seconds",
				Help:    "Backend request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),
		StreamsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "glmchat_streams_active",
				Help: "Streams currently being consumed",
			},
		),
		StreamChunksTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "glmchat_stream_chunks_total",
				Help: "Stream chunks received",
			},
		),
		StreamsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glmchat_streams_total",
				Help: "Finished streams by outcome",
			},
			[]string{"outcome"},
		),
		FirstChunkLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "glmchat_stream_first_chunk_seconds",
				Help:    "Time from request to first stream chunk",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
		),
		NotifyTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glmchat_store_notifications_total",
				Help: "Store change notifications by mode",
			},
			[]string{"mode"},
		),
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glmchat_actions_total",
				Help: "Dispatched actions by type",
			},
			[]string{"type"},
		),
	}
}

// RecordRequest records one backend request.
func (m *Metrics) RecordRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// StreamStarted marks a stream as active.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsActive.Inc()
}

// StreamChunk counts one received chunk.
func (m *Metrics) StreamChunk() {
	if m == nil {
		return
	}
	m.StreamChunksTotal.Inc()
}

// FirstChunk records time to first chunk.
func (m *Metrics) FirstChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstChunkLatency.Observe(d.Seconds())
}

// StreamFinished marks a stream as done with the given outcome.
func (m *Metrics) StreamFinished(outcome string) {
	if m == nil {
		return
	}
	m.StreamsActive.Dec()
	m.StreamsTotal.WithLabelValues(outcome).Inc()
}

// Notified counts one store notification.
func (m *Metrics) Notified(mode string) {
	if m == nil {
		return
	}
	m.NotifyTotal.WithLabelValues(mode).Inc()
}

// ActionDispatched counts one dispatched action.
func (m *Metrics) ActionDispatched(actionType string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(actionType).Inc()
}

// Handler returns the /metrics handler for the gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("METRICS_LISTEN", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
