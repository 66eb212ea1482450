// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the glmchat command tree.
//
// Every command builds a Runtime: the config, the logger, the backend client,
// and the flux pipeline (loop, dispatcher, store, action creators). Line-mode
// commands run the loop on a background goroutine and wait on the creators'
// result channels; the TUI pumps the loop into the Bubble Tea program instead.
//
// Commands:
//
//	glmchat [tui]              Full-screen chat
//	glmchat chat               Line-mode REPL with input history
//	glmchat ask "question"     One-shot question, reply on stdout
//	glmchat history [--json]   Print the current session's conversation
//	glmchat clear              Clear the current session on the server
//	glmchat persona [id]       List presets or set the persona
//	glmchat config ...         show, init, path, get, set, validate
//	glmchat mock-server        Run the in-process fake backend
//
// Errors are returned, never printed and swallowed. main maps them to exit
// codes with GetExitCode.
package cli
