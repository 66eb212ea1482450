// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session persists the client-side session identifier.
//
// The backend keys conversation history by an opaque session id chosen by
// the client. The id is stored in a small file, created on first use, reused
// across runs, and replaced wholesale when the user starts a new chat.
//
// # Usage
//
//	mgr := session.NewManager(filepath.Join(dir, "session_id"))
//	id, err := mgr.Load()      // existing id, or a freshly created one
//	id, err = mgr.Replace()    // new chat
package session
