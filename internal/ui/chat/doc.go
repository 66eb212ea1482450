// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the full-screen Bubble Tea front end.
//
// The program's Update goroutine is the dispatcher's owner goroutine. Work
// posted to the flux loop is forwarded into the program as ExecMsg and run
// inside Update, so every dispatch and every store notification happens
// there:
//
//	p := tea.NewProgram(m, tea.WithAltScreen())
//	go loop.Pump(ctx, chat.Forward(p))
//	_, err := p.Run()
//
// The model never keeps its own copy of the conversation. It subscribes to
// the store, marks itself dirty on each notification, and re-renders the
// viewport once per Update.
package chat
