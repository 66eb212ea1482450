// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/glm/glmtest"
)

// MockOptions configures the fake backend.
type MockOptions struct {
	Listen     string
	ChunkDelay time.Duration
	// CORS admits browser clients.
	CORS bool
	// RateLimit caps requests per client per minute when > 0.
	RateLimit int
	// LineFraming streams bare data lines without blank separators.
	LineFraming bool
}

// RunMockServer serves the fake backend until ctx is done.
func RunMockServer(ctx context.Context, opts MockOptions, log *zap.Logger) error {
	backend := glmtest.New(log)
	backend.Configure(func(b *glmtest.Backend) {
		b.ChunkDelay = opts.ChunkDelay
		b.LineFraming = opts.LineFraming
	})
	return backend.Serve(ctx, opts.Listen, glmtest.ServeOptions{
		CORS:      opts.CORS,
		RateLimit: opts.RateLimit,
	})
}
