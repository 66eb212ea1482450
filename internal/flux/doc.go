// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package flux provides the unidirectional action pipeline used by the chat
// client: a typed action vocabulary, a synchronous non-reentrant Dispatcher,
// a single-owner event Loop, and frame schedulers for coalesced change
// notification.
//
// # Threading
//
// Everything that touches the Dispatcher or a store registered with it must
// run on one owner goroutine. Other goroutines hand work to the owner through
// a Poster:
//
//	loop := flux.NewLoop()
//	go loop.Run(ctx)
//
//	go func() {
//	    chunk := readFromNetwork()
//	    loop.Post(func() {
//	        d.Dispatch(flux.UpdateMessage{ID: id, Patch: model.ContentPatch(chunk)})
//	    })
//	}()
//
// Dispatch panics with ErrReentrantDispatch when called from inside a handler.
package flux
