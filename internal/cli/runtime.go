// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/actions"
	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/flux"
	"github.com/jeranaias/glmchat-tui/internal/glm"
	"github.com/jeranaias/glmchat-tui/internal/logging"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/session"
	"github.com/jeranaias/glmchat-tui/internal/store"
	"github.com/jeranaias/glmchat-tui/internal/telemetry"
)

// LogFileName is the default log file inside the config directory.
const LogFileName = "glmchat.log"

// Runtime is the assembled client: config, logger, metrics, backend client
// and the flux pipeline.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Log        *zap.Logger
	Metrics    *telemetry.Metrics
	Registry   *prometheus.Registry

	Loop       *flux.Loop
	Dispatcher *flux.Dispatcher
	Store      *store.Store
	Client     *glm.Client
	Sessions   *session.Manager
	Creators   *actions.Creators

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// RuntimeOptions adjusts NewRuntime.
type RuntimeOptions struct {
	// Log replaces the logger built from the config.
	Log *zap.Logger
	// SessionFile replaces <config dir>/session_id.
	SessionFile string
}

// NewRuntime assembles the client. The metrics endpoint is started when
// enabled in cfg; it stops with ctx.
func NewRuntime(ctx context.Context, cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	log := opts.Log
	if log == nil {
		var err error
		if log, err = newLogger(cfg); err != nil {
			return nil, err
		}
	}

	sessionFile := opts.SessionFile
	if sessionFile == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		sessionFile = filepath.Join(dir, session.FileName)
	}

	ctx, cancel := context.WithCancel(ctx)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	client := glm.NewClient(cfg.API.BaseURL).
		WithTimeout(cfg.API.Timeout.Duration).
		WithRateLimit(cfg.API.RateLimit, cfg.API.Burst).
		WithMaxRetries(cfg.API.Retries).
		WithLogger(log).
		WithMetrics(metrics)

	loop := flux.NewLoop()
	d := flux.NewDispatcher(log)
	s := store.New(d, flux.NewTimerFrames(loop, cfg.Chat.FrameInterval.Duration),
		store.WithLogger(log),
		store.WithMetrics(metrics),
	)
	sessions := session.NewManager(sessionFile)
	creators := actions.New(d, s, client, sessions, loop,
		actions.WithLogger(log),
		actions.WithMetrics(metrics),
		actions.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
		actions.WithContext(ctx),
	)

	rt := &Runtime{
		Config:     cfg,
		Log:        log,
		Metrics:    metrics,
		Registry:   reg,
		Loop:       loop,
		Dispatcher: d,
		Store:      s,
		Client:     client,
		Sessions:   sessions,
		Creators:   creators,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Metrics.Listen, reg, log); err != nil {
				log.Warn("METRICS_SERVE_FAILED", zap.String("addr", cfg.Metrics.Listen), zap.Error(err))
			}
		}()
	}
	return rt, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	file := cfg.Logging.File
	if file == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		file = filepath.Join(dir, LogFileName)
	}
	log, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		File:        file,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, nil
}

// Context is cancelled by Close.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Start runs the owner loop on a background goroutine. Line-mode commands
// call it; the TUI pumps the loop into its program instead.
func (r *Runtime) Start() {
	r.loopDone = make(chan struct{})
	go func() {
		defer close(r.loopDone)
		_ = r.Loop.Run(r.ctx)
	}()
}

// Do runs fn on the owner goroutine and waits for it.
func (r *Runtime) Do(fn func()) error {
	return r.Loop.Do(r.ctx, fn)
}

// Wait starts op on the owner goroutine and waits for its outcome.
func (r *Runtime) Wait(op func() <-chan error) error {
	var ch <-chan error
	if err := r.Do(func() { ch = op() }); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// Snapshot is a copy of the store taken on the owner goroutine.
type Snapshot struct {
	Messages  []*model.Message
	Error     string
	SessionID string
	Persona   model.PersonaConfig
	Typing    bool
}

// Snapshot copies the store state.
func (r *Runtime) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := r.Do(func() {
		snap = Snapshot{
			Messages:  r.Store.MessagesCopy(),
			Error:     r.Store.Error(),
			SessionID: r.Store.SessionID(),
			Persona:   r.Store.Persona(),
			Typing:    r.Store.Typing(),
		}
	})
	return snap, err
}

// Close stops the loop, cancels in-flight requests and flushes the log. The
// owner loop must not be running anything else afterwards.
func (r *Runtime) Close() {
	r.cancel()
	if r.loopDone != nil {
		<-r.loopDone
	}
	r.Creators.Close()
	r.Store.Close()
	_ = r.Log.Sync()
}
