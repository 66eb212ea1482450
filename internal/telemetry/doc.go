// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides Prometheus instrumentation for glmchat.
//
// Metrics are registered on an injected registry so tests and multiple
// clients in one process do not collide. A nil *Metrics is valid and records
// nothing.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m := telemetry.NewMetrics(reg)
//	m.RecordRequest(telemetry.EndpointChat, telemetry.OutcomeOK, time.Since(start))
//
//	go telemetry.Serve(ctx, ":9464", reg, log)
//
// # Privacy
//
// Only counts and durations are recorded. Message content never is.
package telemetry
