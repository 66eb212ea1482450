// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the conversation state for the chat client.
//
// The Store is the only writer of its state. It changes state solely in
// response to actions delivered by a flux.Dispatcher and then notifies its
// listeners. Structural changes notify immediately; in-progress streaming
// content notifies at most once per frame.
//
// All methods must be called on the dispatcher's owner goroutine.
package store

import (
	"github.com/jeranaias/glmchat-tui/internal/flux"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/telemetry"
	"go.uber.org/zap"
)

// Listener is called after the state changed.
type Listener func()

type subscription struct {
	id uint64
	fn Listener
}

// Store is the conversation state owner.
type Store struct {
	log     *zap.Logger
	frames  flux.FrameScheduler
	metrics *telemetry.Metrics

	state   model.ConversationState
	version uint64
	// sealed holds ids of messages that finished streaming.
	sealed map[string]bool

	listeners  []subscription
	nextListen uint64

	cancelFrame func()
	unregister  func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store and registers it with the dispatcher.
// frames drives coalesced notifications.
func New(d *flux.Dispatcher, frames flux.FrameScheduler, opts ...Option) *Store {
	s := &Store{
		log:    zap.NewNop(),
		frames: frames,
		state:  model.NewConversationState(),
		sealed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("store")
	s.unregister = d.Register(s.handleAction)
	return s
}

// Close unregisters the store and drops any pending frame.
func (s *Store) Close() {
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}
	s.cancelPendingFrame()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Messages returns the live message list. Callers must not modify it and
// must copy it if they need isolation from later changes.
func (s *Store) Messages() []*model.Message {
	return s.state.Messages
}

// MessagesCopy returns a copy of the message list.
func (s *Store) MessagesCopy() []*model.Message {
	out := make([]*model.Message, len(s.state.Messages))
	copy(out, s.state.Messages)
	return out
}

// MessageByID returns the message with the given id, or nil.
func (s *Store) MessageByID(id string) *model.Message {
	return s.state.MessageByID(id)
}

// StreamingMessage returns the in-flight assistant message, or nil.
func (s *Store) StreamingMessage() *model.Message {
	if i := s.state.StreamingIndex(); i >= 0 {
		return s.state.Messages[i]
	}
	return nil
}

// Typing reports whether a reply is awaited.
func (s *Store) Typing() bool { return s.state.Typing }

// Error returns the current error, empty when there is none.
func (s *Store) Error() string { return s.state.Error }

// SessionID returns the backend session handle.
func (s *Store) SessionID() string { return s.state.SessionID }

// Persona returns the active persona configuration.
func (s *Store) Persona() model.PersonaConfig { return s.state.Persona }

// Version increases on every state change.
func (s *Store) Version() uint64 { return s.version }

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers a change listener and returns a function removing it.
// Listeners invoked for an immediate change run inside a dispatch and must
// not dispatch synchronously.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.nextListen++
	id := s.nextListen
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				next := make([]subscription, 0, len(s.listeners)-1)
				next = append(next, s.listeners[:i]...)
				s.listeners = append(next, s.listeners[i+1:]...)
				return
			}
		}
	}
}

// emitNow cancels any pending frame and notifies synchronously.
func (s *Store) emitNow() {
	s.cancelPendingFrame()
	s.metrics.Notified(telemetry.NotifyImmediate)
	s.emit()
}

// emitCoalesced schedules one notification for the next frame. Further calls
// before the frame fires are absorbed.
func (s *Store) emitCoalesced() {
	if s.cancelFrame != nil {
		return
	}
	s.cancelFrame = s.frames.Schedule(func() {
		s.cancelFrame = nil
		s.metrics.Notified(telemetry.NotifyCoalesced)
		s.emit()
	})
}

func (s *Store) cancelPendingFrame() {
	if s.cancelFrame != nil {
		s.cancelFrame()
		s.cancelFrame = nil
	}
}

func (s *Store) emit() {
	for _, l := range s.listeners {
		l.fn()
	}
}

// HasPendingFrame reports whether a coalesced notification is waiting.
func (s *Store) HasPendingFrame() bool {
	return s.cancelFrame != nil
}

// =============================================================================
// ACTION HANDLING
// =============================================================================

func (s *Store) handleAction(a flux.Action) {
	s.metrics.ActionDispatched(string(a.Type()))

	switch act := a.(type) {
	case flux.AddMessage:
		s.addMessage(act.Message)
	case flux.UpdateMessage:
		s.updateMessage(act.ID, act.Patch)
	case flux.DeleteMessage:
		s.deleteMessage(act.ID)
	case flux.ClearMessages:
		s.state.ClearMessages()
		s.sealed = make(map[string]bool)
		s.changed(true)
	case flux.SetTyping:
		s.state.Typing = act.Typing
		s.changed(true)
	case flux.SetError:
		s.state.Error = act.Message
		s.changed(true)
	case flux.ResetError:
		s.state.Error = ""
		s.changed(true)
	case flux.SetSessionID:
		s.state.SessionID = act.SessionID
		s.changed(true)
	case flux.LoadHistory:
		s.loadHistory(act.Messages)
	case flux.SetPersona:
		s.state.Persona = act.Config
		s.changed(true)
	default:
		s.log.Warn("STORE_UNKNOWN_ACTION", zap.String("type", string(a.Type())))
	}
}

func (s *Store) changed(immediate bool) {
	s.version++
	if immediate {
		s.emitNow()
	} else {
		s.emitCoalesced()
	}
}

func (s *Store) addMessage(msg *model.Message) {
	if msg == nil {
		s.log.Warn("STORE_ADD_NIL")
		return
	}
	if s.state.IndexOf(msg.ID) >= 0 {
		s.log.Warn("STORE_ADD_DUPLICATE", zap.String("id", msg.ID))
		return
	}

	// At most one message streams at a time; a new stream seals the old one.
	if msg.IsStreaming {
		if i := s.state.StreamingIndex(); i >= 0 {
			old := s.state.Messages[i]
			streaming := false
			s.state.Messages[i] = old.Apply(model.MessagePatch{IsStreaming: &streaming})
			s.sealed[old.ID] = true
			s.log.Info("STORE_STREAM_SUPERSEDED", zap.String("id", old.ID))
		}
	}

	s.state.Messages = append(s.state.Messages, msg.Clone())
	s.changed(true)
}

// updateMessage merges a patch into a message. A missing id is a benign race
// with a cleared conversation and is ignored. A message that finished
// streaming never changes again; other messages accept content patches but
// cannot start streaming.
func (s *Store) updateMessage(id string, patch model.MessagePatch) {
	idx := s.state.IndexOf(id)
	if idx < 0 {
		s.log.Debug("STORE_UPDATE_MISS", zap.String("id", id))
		return
	}
	if s.sealed[id] {
		s.log.Debug("STORE_UPDATE_SEALED", zap.String("id", id))
		return
	}

	existing := s.state.Messages[idx]
	wasStreaming := existing.IsStreaming
	if !wasStreaming {
		patch.IsStreaming = nil
	}

	next := existing.Apply(patch)
	s.state.Messages[idx] = next

	sealedNow := wasStreaming && !next.IsStreaming
	if sealedNow {
		s.sealed[id] = true
	}
	// The transition to sealed is shown without waiting for a frame.
	s.changed(sealedNow)
}

func (s *Store) deleteMessage(id string) {
	idx := s.state.IndexOf(id)
	if idx < 0 {
		s.log.Debug("STORE_DELETE_MISS", zap.String("id", id))
		return
	}
	msgs := make([]*model.Message, 0, len(s.state.Messages)-1)
	msgs = append(msgs, s.state.Messages[:idx]...)
	s.state.Messages = append(msgs, s.state.Messages[idx+1:]...)
	delete(s.sealed, id)
	s.changed(true)
}

// loadHistory replaces the message list in one step. Loaded messages are
// always sealed and duplicate ids are dropped.
func (s *Store) loadHistory(msgs []*model.Message) {
	seen := make(map[string]bool, len(msgs))
	loaded := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if seen[m.ID] {
			s.log.Warn("STORE_HISTORY_DUPLICATE", zap.String("id", m.ID))
			continue
		}
		seen[m.ID] = true
		c := m.Clone()
		c.IsStreaming = false
		loaded = append(loaded, c)
	}
	s.state.Messages = loaded
	s.sealed = make(map[string]bool)
	s.changed(true)
}
