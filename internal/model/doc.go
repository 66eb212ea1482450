// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: one chat message with a Revision bumped on every change
//   - MessagePatch: partial update merged by Message.Apply
//   - ConversationState: message list, typing flag, error, session id, persona
//   - PersonaConfig: role-play mode (none, preset, custom)
//   - Preset: built-in persona catalog entry
//
// # Usage
//
//	msg := model.NewStreamingPlaceholder()
//	next := msg.Apply(model.ContentPatch("Hi"))
//	// next.Revision == msg.Revision+1, msg is unchanged
package model
