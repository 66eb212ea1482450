// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the TUI and the
// line-mode REPL.
//
// A handler never touches the conversation itself. It returns a tea.Cmd whose
// message names the intent (NewChatMsg, SetPersonaMsg, ...); the front end
// maps that intent onto the action creators. The REPL simply calls the
// command and switches on the message.
//
// # Usage
//
//	registry := commands.NewRegistry()
//	result := commands.NewParser(registry).Parse("/persona doctor")
//	if result.Error != nil {
//	    return result.Error
//	}
//	msg := result.Command.Handler(ctx, result.Args)()
package commands
