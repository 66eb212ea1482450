// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/glmchat-tui/internal/config"
)

// ExecMsg carries a closure posted to the flux loop. Update runs it.
type ExecMsg func()

// ConfigMsg delivers a reloaded configuration.
type ConfigMsg struct {
	Config *config.Config
}

// startMsg triggers session adoption and the first history load.
type startMsg struct{}

// Sender is the part of *tea.Program that Forward needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward returns a deliver function for flux.Loop.Pump that hands each
// closure to the program.
func Forward(p Sender) func(fn func()) {
	return func(fn func()) {
		p.Send(ExecMsg(fn))
	}
}
