// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the colors and lipgloss styles of the chat screen.
//
// Colors are lipgloss.AdaptiveColor values so one palette serves light and
// dark terminals. NewTheme pins the background when the user picks a theme
// explicitly and asks the terminal otherwise.
package styles
