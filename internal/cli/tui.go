// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/ui/chat"
)

// RunTUI runs the full-screen client. The owner loop is pumped into the
// program, and edits to the config file at configPath are applied live.
func RunTUI(rt *Runtime, configPath string) error {
	m := chat.New(chat.Deps{
		Store:    rt.Store,
		Creators: rt.Creators,
		Config:   rt.Config,
		Log:      rt.Log,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	ctx, cancel := context.WithCancel(rt.Context())
	defer cancel()
	go func() { _ = rt.Loop.Pump(ctx, chat.Forward(p)) }()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if configPath != "" {
		if w, err := config.NewWatcher(configPath, rt.Log); err != nil {
			rt.Log.Warn("CONFIG_WATCH_FAILED", zap.Error(err))
		} else {
			go func() {
				_ = w.Run(ctx, func(cfg *config.Config) {
					p.Send(chat.ConfigMsg{Config: cfg})
				})
			}()
		}
	}

	rt.Log.Info("TUI_START", zap.String("base_url", rt.Config.API.BaseURL))
	_, err := p.Run()
	return err
}
