// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flux

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrReentrantDispatch is the panic value raised when Dispatch is called
// while another Dispatch is still running its handlers.
var ErrReentrantDispatch = errors.New("flux: cannot dispatch in the middle of a dispatch")

// Handler receives every dispatched action.
type Handler func(Action)

type registration struct {
	id      uint64
	handler Handler
}

// Dispatcher is a synchronous broadcast bus.
//
// Handlers run in registration order on the caller's goroutine. A handler
// panic propagates to the caller of Dispatch and the remaining handlers for
// that action are not invoked; the dispatcher itself stays usable.
type Dispatcher struct {
	log         *zap.Logger
	dispatching atomic.Bool
	handlers    []registration
	nextID      uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log}
}

// Register adds a handler and returns a function that removes it.
// The returned function is idempotent.
func (d *Dispatcher) Register(h Handler) (unregister func()) {
	d.nextID++
	id := d.nextID
	d.handlers = append(d.handlers, registration{id: id, handler: h})

	return func() {
		for i, r := range d.handlers {
			if r.id == id {
				// Copy so a dispatch already iterating the old slice is unaffected.
				next := make([]registration, 0, len(d.handlers)-1)
				next = append(next, d.handlers[:i]...)
				next = append(next, d.handlers[i+1:]...)
				d.handlers = next
				return
			}
		}
	}
}

// Dispatch delivers an action to every registered handler.
// It panics with ErrReentrantDispatch if called from inside a handler.
func (d *Dispatcher) Dispatch(a Action) {
	if !d.dispatching.CompareAndSwap(false, true) {
		d.log.Error("DISPATCH_REENTRANT", zap.String("action", string(a.Type())))
		panic(ErrReentrantDispatch)
	}
	defer d.dispatching.Store(false)

	for _, r := range d.handlers {
		r.handler(a)
	}
}

// IsDispatching reports whether a dispatch is in progress.
func (d *Dispatcher) IsDispatching() bool {
	return d.dispatching.Load()
}

// HandlerCount returns the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	return len(d.handlers)
}
