// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package actions turns user intents into dispatched actions.
//
// Creators is the only layer that talks to the backend. Every method must be
// called on the dispatcher's owner goroutine; network work runs on its own
// goroutine and posts its results back through a flux.Poster. Methods that
// touch the network return a channel that receives the outcome once the
// resulting actions have been dispatched, then closes.
//
// Backend failures never escape as panics. They end up in the store's error
// field and on the returned channel.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/glmchat-tui/internal/flux"
	"github.com/jeranaias/glmchat-tui/internal/glm"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/session"
	"github.com/jeranaias/glmchat-tui/internal/store"
	"github.com/jeranaias/glmchat-tui/internal/telemetry"
	"go.uber.org/zap"
)

// DefaultMaxMessageLength is the longest message accepted, in runes.
const DefaultMaxMessageLength = 5000

var (
	// ErrEmptyMessage is returned for blank input. Nothing is dispatched.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when input exceeds the length limit.
	ErrMessageTooLong = errors.New("message is too long")

	// ErrInvalidPersona is returned for a persona the backend cannot be sent.
	ErrInvalidPersona = errors.New("invalid persona")
)

// API is the subset of the backend client the creators use.
type API interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
	Stream(ctx context.Context, sessionID, message string) (<-chan glm.StreamEvent, error)
	History(ctx context.Context, sessionID string) (*glm.History, error)
	ClearHistory(ctx context.Context, sessionID string) error
	SetCharacter(ctx context.Context, req glm.CharacterRequest) error
}

// Sessions persists the session id between runs.
type Sessions interface {
	Load() (string, error)
	Replace() (string, error)
	Set(id string) error
}

// Creators composes the dispatcher, the store and the backend client.
type Creators struct {
	d        *flux.Dispatcher
	store    *store.Store
	api      API
	sessions Sessions
	poster   flux.Poster
	log      *zap.Logger
	metrics  *telemetry.Metrics

	maxLen int
	ctx    context.Context
	stop   context.CancelFunc

	// in-flight stream, owner goroutine only
	streamID     string
	cancelStream context.CancelFunc
}

// Option configures Creators.
type Option func(*Creators)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Creators) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Creators) { c.metrics = m }
}

// WithMaxMessageLength sets the input limit in runes. Non-positive values
// keep the default.
func WithMaxMessageLength(n int) Option {
	return func(c *Creators) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

// WithContext sets the parent context of all backend calls.
func WithContext(ctx context.Context) Option {
	return func(c *Creators) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// New creates the action creators. sessions may be nil, in which case the
// session id lives only in the store.
func New(d *flux.Dispatcher, s *store.Store, api API, sessions Sessions, poster flux.Poster, opts ...Option) *Creators {
	c := &Creators{
		d:        d,
		store:    s,
		api:      api,
		sessions: sessions,
		poster:   poster,
		log:      zap.NewNop(),
		maxLen:   DefaultMaxMessageLength,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("actions")
	c.ctx, c.stop = context.WithCancel(c.ctx)
	return c
}

// Close cancels every backend call still in flight. Results that arrive
// afterwards are still posted but find their messages sealed or gone.
func (c *Creators) Close() {
	c.stop()
	c.streamID = ""
	c.cancelStream = nil
}

// SetMaxMessageLength changes the input limit. Non-positive values are
// ignored.
func (c *Creators) SetMaxMessageLength(n int) {
	if n > 0 {
		c.maxLen = n
	}
}

// Streaming reports whether a send-stream operation is in flight.
func (c *Creators) Streaming() bool {
	return c.cancelStream != nil
}

// =============================================================================
// SEND
// =============================================================================

// SendMessage sends text and waits for the whole reply.
func (c *Creators) SendMessage(text string) <-chan error {
	done := make(chan error, 1)
	text, err := c.validate(text)
	if err != nil {
		return finish(done, err)
	}

	c.d.Dispatch(flux.AddMessage{Message: model.NewUserMessage(text)})
	c.d.Dispatch(flux.SetTyping{Typing: true})
	c.d.Dispatch(flux.ResetError{})

	sessionID := c.store.SessionID()
	go func() {
		reply, err := c.api.Chat(c.ctx, sessionID, text)
		c.poster.Post(func() {
			if err != nil {
				c.log.Warn("SEND_FAILED", zap.Error(err))
				c.d.Dispatch(flux.SetTyping{Typing: false})
				c.d.Dispatch(flux.SetError{Message: errorText(err, "failed to send message")})
				finish(done, err)
				return
			}
			c.d.Dispatch(flux.AddMessage{Message: model.NewAssistantMessage(reply)})
			c.d.Dispatch(flux.SetTyping{Typing: false})
			c.persistSession()
			finish(done, nil)
		})
	}()
	return done
}

// SendMessageStream sends text and streams the reply into a placeholder
// message. A stream already in flight is cancelled first.
func (c *Creators) SendMessageStream(text string) <-chan error {
	done := make(chan error, 1)
	text, err := c.validate(text)
	if err != nil {
		return finish(done, err)
	}
	c.cancelInFlight()

	c.d.Dispatch(flux.AddMessage{Message: model.NewUserMessage(text)})
	c.d.Dispatch(flux.SetTyping{Typing: true})
	c.d.Dispatch(flux.ResetError{})

	placeholder := model.NewStreamingPlaceholder()
	c.d.Dispatch(flux.AddMessage{Message: placeholder})

	ctx, cancel := context.WithCancel(c.ctx)
	c.streamID = placeholder.ID
	c.cancelStream = cancel

	go c.runStream(ctx, placeholder.ID, c.store.SessionID(), text, done)
	return done
}

// runStream reads the reply off the network. It never touches the store
// directly.
func (c *Creators) runStream(ctx context.Context, id, sessionID, text string, done chan error) {
	start := time.Now()
	c.metrics.StreamStarted()
	c.log.Debug("STREAM_START", zap.String("message_id", id), zap.String("session", sessionID))

	events, err := c.api.Stream(ctx, sessionID, text)
	if err != nil {
		c.poster.Post(func() { finish(done, c.failStream(id, "", err)) })
		return
	}

	var total strings.Builder
	chunks := 0
	terminal := false
	for ev := range events {
		terminal = terminal || ev.Terminal()
		switch {
		case ev.Err != nil:
			partial := total.String()
			streamErr := ev.Err
			c.poster.Post(func() { finish(done, c.failStream(id, partial, streamErr)) })
		case ev.Done:
			content := total.String()
			n := chunks
			c.poster.Post(func() {
				c.completeStream(id, content, n, time.Since(start))
				finish(done, nil)
			})
		default:
			total.WriteString(ev.Chunk)
			chunks++
			c.metrics.StreamChunk()
			first := chunks == 1
			if first {
				c.metrics.FirstChunk(time.Since(start))
			}
			content := total.String()
			c.poster.Post(func() {
				if first && c.streamID == id {
					c.d.Dispatch(flux.SetTyping{Typing: false})
				}
				c.d.Dispatch(flux.UpdateMessage{ID: id, Patch: model.ContentPatch(content)})
			})
		}
	}
	if !terminal {
		partial := total.String()
		c.poster.Post(func() { finish(done, c.failStream(id, partial, io.ErrUnexpectedEOF)) })
	}
}

func (c *Creators) completeStream(id, content string, chunks int, elapsed time.Duration) {
	current := c.release(id)
	if current {
		c.d.Dispatch(flux.SetTyping{Typing: false})
	}
	c.d.Dispatch(flux.UpdateMessage{ID: id, Patch: model.SealPatch(content)})
	c.metrics.StreamFinished(telemetry.OutcomeOK)
	c.log.Info("STREAM_COMPLETE",
		zap.String("message_id", id),
		zap.Int("chunks", chunks),
		zap.Int("chars", utf8.RuneCountInString(content)),
		zap.Duration("elapsed", elapsed))
	c.persistSession()
}

// failStream seals the placeholder with the partial reply and returns the
// error to report. Cancellation is not shown to the user.
func (c *Creators) failStream(id, partial string, err error) error {
	current := c.release(id)
	sealed := partial
	if sealed == "" {
		sealed = model.InterruptedMarker
	}

	if errors.Is(err, context.Canceled) {
		c.metrics.StreamFinished(telemetry.OutcomeCancelled)
		c.log.Info("STREAM_CANCELLED", zap.String("message_id", id), zap.Int("partial_chars", len(partial)))
		if current {
			c.d.Dispatch(flux.SetTyping{Typing: false})
		}
		c.d.Dispatch(flux.UpdateMessage{ID: id, Patch: model.SealPatch(sealed)})
		return err
	}

	c.metrics.StreamFinished(telemetry.OutcomeError)
	c.log.Warn("STREAM_FAILED", zap.String("message_id", id), zap.Int("partial_chars", len(partial)), zap.Error(err))
	if current {
		c.d.Dispatch(flux.SetTyping{Typing: false})
		c.d.Dispatch(flux.SetError{Message: errorText(err, "stream failed")})
	}
	c.d.Dispatch(flux.UpdateMessage{ID: id, Patch: model.SealPatch(sealed)})
	return err
}

// CancelStream stops the in-flight stream, if any. Its placeholder is sealed
// with whatever arrived so far once the reader notices.
func (c *Creators) CancelStream() bool {
	if c.cancelStream == nil {
		return false
	}
	c.log.Debug("STREAM_CANCEL", zap.String("message_id", c.streamID))
	c.cancelStream()
	return true
}

// cancelInFlight abandons the current stream. Its late results no longer
// touch typing or error.
func (c *Creators) cancelInFlight() {
	if c.cancelStream == nil {
		return
	}
	c.log.Debug("STREAM_SUPERSEDED", zap.String("message_id", c.streamID))
	c.cancelStream()
	c.streamID = ""
	c.cancelStream = nil
}

// release forgets stream id and reports whether it was the current one.
func (c *Creators) release(id string) bool {
	if c.streamID != id || c.cancelStream == nil {
		return false
	}
	c.cancelStream()
	c.streamID = ""
	c.cancelStream = nil
	return true
}

// =============================================================================
// HISTORY
// =============================================================================

// LoadHistory replaces the conversation with the backend's copy.
func (c *Creators) LoadHistory() <-chan error {
	done := make(chan error, 1)
	sessionID := c.store.SessionID()

	go func() {
		h, err := c.api.History(c.ctx, sessionID)
		now := time.Now()
		c.poster.Post(func() {
			if err != nil {
				c.log.Warn("HISTORY_LOAD_FAILED", zap.String("session", sessionID), zap.Error(err))
				c.d.Dispatch(flux.SetError{Message: errorText(err, "failed to load history")})
				finish(done, err)
				return
			}
			c.applyHistory(h, now)
			finish(done, nil)
		})
	}()
	return done
}

func (c *Creators) applyHistory(h *glm.History, now time.Time) {
	msgs := HistoryMessages(h.History, now)
	c.d.Dispatch(flux.LoadHistory{Messages: msgs})

	if h.SessionID != "" && h.SessionID != c.store.SessionID() {
		c.d.Dispatch(flux.SetSessionID{SessionID: h.SessionID})
	}
	if h.SessionID != "" {
		c.persistSession()
	}
	if h.Character != nil {
		c.d.Dispatch(flux.SetPersona{Config: model.ReconstructPersona(h.Character.CharacterID, h.Character.CharacterDescription)})
	}
	c.log.Info("HISTORY_LOADED",
		zap.String("session", c.store.SessionID()),
		zap.Int("received", len(h.History)),
		zap.Int("loaded", len(msgs)))
}

// HistoryMessages converts backend history into messages. Entries other than
// user and assistant are dropped; ids are assigned locally; missing
// timestamps become now.
func HistoryMessages(items []glm.HistoryItem, now time.Time) []*model.Message {
	msgs := make([]*model.Message, 0, len(items))
	for _, item := range items {
		role := model.Role(item.Role)
		if !role.IsConversational() {
			continue
		}
		msg := model.NewMessage(role, item.Content)
		msg.Timestamp = item.Time(now)
		msgs = append(msgs, msg)
	}
	return msgs
}

// ClearHistory clears the conversation on the backend and then locally.
// When the backend call fails nothing local changes.
func (c *Creators) ClearHistory() <-chan error {
	done := make(chan error, 1)
	sessionID := c.store.SessionID()

	go func() {
		err := c.api.ClearHistory(c.ctx, sessionID)
		c.poster.Post(func() {
			if err != nil {
				c.log.Warn("HISTORY_CLEAR_FAILED", zap.String("session", sessionID), zap.Error(err))
				c.d.Dispatch(flux.SetError{Message: errorText(err, "failed to clear history")})
				finish(done, err)
				return
			}
			c.resetConversation()
			c.log.Info("HISTORY_CLEARED", zap.String("session", sessionID))
			finish(done, nil)
		})
	}()
	return done
}

// =============================================================================
// PERSONA
// =============================================================================

// SetPersona asks the backend to adopt cfg. Only after it accepts is cfg
// installed and the conversation cleared. A rejection leaves no persona
// active.
func (c *Creators) SetPersona(cfg model.PersonaConfig) <-chan error {
	done := make(chan error, 1)
	if err := validatePersona(cfg); err != nil {
		c.d.Dispatch(flux.SetError{Message: err.Error()})
		return finish(done, err)
	}

	sessionID := c.store.SessionID()
	id, description := cfg.Character()
	req := glm.CharacterRequest{SessionID: sessionID, CharacterID: id, CharacterDescription: description}

	go func() {
		err := c.api.SetCharacter(c.ctx, req)
		c.poster.Post(func() {
			if err != nil {
				c.log.Warn("PERSONA_REJECTED", zap.String("character", id), zap.Error(err))
				c.d.Dispatch(flux.SetPersona{Config: model.NoPersona()})
				c.d.Dispatch(flux.SetError{Message: errorText(err, "failed to set persona")})
				finish(done, err)
				return
			}
			c.d.Dispatch(flux.SetPersona{Config: cfg})
			c.resetConversation()
			c.log.Info("PERSONA_SET", zap.String("mode", string(cfg.Mode)), zap.String("character", id))
			finish(done, nil)
		})
	}()
	return done
}

func validatePersona(cfg model.PersonaConfig) error {
	switch cfg.Mode {
	case model.PersonaNone, "":
		return nil
	case model.PersonaPreset:
		if _, ok := model.FindPreset(cfg.PresetID); !ok {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidPersona, cfg.PresetID)
		}
		return nil
	case model.PersonaCustom:
		if strings.TrimSpace(cfg.Prompt) == "" {
			return fmt.Errorf("%w: custom prompt is empty", ErrInvalidPersona)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPersona, cfg.Mode)
	}
}

// =============================================================================
// LOCAL OPERATIONS
// =============================================================================

// Init adopts the persisted session id, creating one if needed, and loads its
// history.
func (c *Creators) Init() <-chan error {
	c.Resume()
	return c.LoadHistory()
}

// Resume adopts the persisted session id without contacting the backend and
// returns it.
func (c *Creators) Resume() string {
	id := c.store.SessionID()
	if c.sessions != nil {
		loaded, err := c.sessions.Load()
		if err != nil {
			c.log.Warn("SESSION_LOAD_FAILED", zap.Error(err))
		}
		if loaded != "" {
			id = loaded
		}
	}
	if id == "" {
		id = session.NewID()
	}
	c.d.Dispatch(flux.SetSessionID{SessionID: id})
	return id
}

// NewChat starts a fresh conversation under a new session id. The returned
// error only reports a failure to persist the id; the new id is used anyway.
func (c *Creators) NewChat() error {
	c.resetConversation()
	c.d.Dispatch(flux.SetPersona{Config: model.NoPersona()})

	var (
		id  string
		err error
	)
	if c.sessions != nil {
		id, err = c.sessions.Replace()
	}
	if id == "" {
		id = session.NewID()
	}
	c.d.Dispatch(flux.SetSessionID{SessionID: id})
	if err != nil {
		c.log.Warn("SESSION_SAVE_FAILED", zap.Error(err))
		c.d.Dispatch(flux.SetError{Message: err.Error()})
		return err
	}
	c.log.Info("NEW_CHAT", zap.String("session", id))
	return nil
}

// DeleteMessage removes a message locally. The backend keeps its copy.
// Deleting the message being streamed cancels the stream.
func (c *Creators) DeleteMessage(id string) {
	if id == c.streamID {
		c.cancelInFlight()
		c.d.Dispatch(flux.SetTyping{Typing: false})
	}
	c.d.Dispatch(flux.DeleteMessage{ID: id})
}

// DismissError clears the visible error.
func (c *Creators) DismissError() {
	c.d.Dispatch(flux.ResetError{})
}

func (c *Creators) resetConversation() {
	c.cancelInFlight()
	c.d.Dispatch(flux.ClearMessages{})
	if c.store.Typing() {
		c.d.Dispatch(flux.SetTyping{Typing: false})
	}
	c.d.Dispatch(flux.ResetError{})
}

// persistSession saves the store's session id. Failures are logged only.
func (c *Creators) persistSession() {
	id := c.store.SessionID()
	if c.sessions == nil || id == "" {
		return
	}
	if err := c.sessions.Set(id); err != nil {
		c.log.Warn("SESSION_SAVE_FAILED", zap.String("session", id), zap.Error(err))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// validate trims text and enforces the length limit. An over-long message
// is reported through the store; an empty one is ignored silently.
func (c *Creators) validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > c.maxLen {
		err := fmt.Errorf("%w: %d characters, limit is %d", ErrMessageTooLong, n, c.maxLen)
		c.d.Dispatch(flux.SetError{Message: err.Error()})
		return "", err
	}
	return text, nil
}

func finish(done chan error, err error) <-chan error {
	done <- err
	close(done)
	return done
}

// errorText is the message shown to the user for err.
func errorText(err error, fallback string) string {
	var apiErr *glm.APIError
	if errors.As(err, &apiErr) && apiErr.Msg != "" {
		return apiErr.Msg
	}
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
