// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package glmtest provides an in-process fake of the GLM chat backend.
//
// It serves the same /api/glm routes as the real backend, keeps history per
// session in memory, and can be told to fail in specific ways. Tests mount it
// with httptest; the mock-server command serves it on a real port.
package glmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jeranaias/glmchat-tui/internal/glm"
	"go.uber.org/zap"
)

// Prefix is the path prefix of every route. A client's base URL is the
// server URL plus Prefix.
const Prefix = "/api"

type session struct {
	history   []glm.HistoryItem
	character *glm.CharacterInfo
}

// Backend is the fake server state. Exported fields may be changed between
// requests; they are read under the backend's lock.
type Backend struct {
	mu       sync.Mutex
	sessions map[string]*session
	log      *zap.Logger

	// Reply produces the assistant answer. Defaults to an echo.
	Reply func(message string) string

	// Chunks splits a reply into stream chunks. Defaults to word chunks that
	// keep their leading space.
	Chunks func(reply string) []string

	// ChunkDelay is slept between stream chunks.
	ChunkDelay time.Duration

	// AbortAfter drops the stream connection after that many chunks when > 0.
	AbortAfter int

	// OmitDone leaves out the [DONE] sentinel so the stream ends at EOF.
	OmitDone bool

	// LineFraming writes bare data lines with no blank line between them.
	LineFraming bool

	// Fail maps a route name (chat, stream, history, clear, character) to an
	// HTTP status the route answers with instead of working.
	Fail map[string]int

	// Reject maps a route name to an envelope code the route answers with.
	Reject map[string]int

	// Requests counts handled requests per route name.
	Requests map[string]int
}

// New creates an empty backend.
func New(log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		sessions: make(map[string]*session),
		log:      log,
		Reply:    func(m string) string { return "echo: " + m },
		Chunks:   WordChunks,
		Fail:     make(map[string]int),
		Reject:   make(map[string]int),
		Requests: make(map[string]int),
	}
}

// WordChunks splits text at spaces, keeping each space with the word after it.
func WordChunks(text string) []string {
	var chunks []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' {
			chunks = append(chunks, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

// ServeOptions configures the HTTP surface of the backend.
type ServeOptions struct {
	// CORS admits browser clients from any origin.
	CORS bool
	// RateLimit caps requests per client IP per minute when > 0.
	RateLimit int
}

// Handler returns the chi router serving all routes.
func (b *Backend) Handler() http.Handler {
	return b.HandlerWith(ServeOptions{})
}

// HandlerWith returns the router with the given middleware enabled.
func (b *Backend) HandlerWith(opts ServeOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.CORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*", "http://*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))
	}
	if opts.RateLimit > 0 {
		r.Use(httprate.Limit(
			opts.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			}),
		))
	}

	r.Route(Prefix+"/glm", func(r chi.Router) {
		r.Post("/chat", b.handleChat)
		r.Post("/chat/stream", b.handleStream)
		r.Get("/history", b.handleHistory)
		r.Delete("/history", b.handleClear)
		r.Post("/character", b.handleCharacter)
	})
	return r
}

// Serve listens on addr until ctx is done.
func (b *Backend) Serve(ctx context.Context, addr string, opts ServeOptions) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.HandlerWith(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	b.log.Info("MOCK_BACKEND_LISTEN",
		zap.String("addr", addr),
		zap.Bool("cors", opts.CORS),
		zap.Int("rate_limit", opts.RateLimit))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// Seed replaces the history and character of a session.
func (b *Backend) Seed(sessionID string, history []glm.HistoryItem, character *glm.CharacterInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sessionID] = &session{history: history, character: character}
}

// HistoryOf returns a copy of the stored history for a session.
func (b *Backend) HistoryOf(sessionID string) []glm.HistoryItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]glm.HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

// CharacterOf returns the persona stored for a session.
func (b *Backend) CharacterOf(sessionID string) *glm.CharacterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[sessionID]; ok {
		return s.character
	}
	return nil
}

// Configure changes the exported settings under the backend's lock.
func (b *Backend) Configure(fn func(b *Backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// SetFail makes route answer with an HTTP status. Zero restores it.
func (b *Backend) SetFail(route string, status int) {
	b.Configure(func(b *Backend) { b.Fail[route] = status })
}

// SetReject makes route answer with a non-zero envelope code. Zero restores it.
func (b *Backend) SetReject(route string, code int) {
	b.Configure(func(b *Backend) { b.Reject[route] = code })
}

// RequestCount returns how many requests a route handled.
func (b *Backend) RequestCount(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Requests[route]
}

// begin records a request and reports the configured failure, if any.
func (b *Backend) begin(route string) (status, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Requests[route]++
	return b.Fail[route], b.Reject[route]
}

func (b *Backend) sessionLocked(id string) *session {
	s, ok := b.sessions[id]
	if !ok {
		s = &session{}
		b.sessions[id] = s
	}
	return s
}

func (b *Backend) appendTurn(sessionID, user, assistant string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UnixMilli()
	s := b.sessionLocked(sessionID)
	s.history = append(s.history,
		glm.HistoryItem{Role: "user", Content: user, Timestamp: &now},
		glm.HistoryItem{Role: "assistant", Content: assistant, Timestamp: &now},
	)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, "chat") {
		return
	}
	var req glm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 400, "invalid request body", nil)
		return
	}

	b.mu.Lock()
	reply := b.Reply(req.Message)
	b.mu.Unlock()

	b.appendTurn(req.SessionID, req.Message, reply)
	writeEnvelope(w, 0, "", reply)
}

func (b *Backend) handleStream(w http.ResponseWriter, r *http.Request) {
	if status, _ := b.begin("stream"); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	var req glm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	b.mu.Lock()
	reply := b.Reply(req.Message)
	chunks := b.Chunks(reply)
	delay, abortAfter, omitDone, lines := b.ChunkDelay, b.AbortAfter, b.OmitDone, b.LineFraming
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for i, chunk := range chunks {
		if abortAfter > 0 && i == abortAfter {
			b.log.Info("MOCK_STREAM_ABORT", zap.Int("after", i))
			panic(http.ErrAbortHandler)
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
		writeData(w, chunk, lines)
		flusher.Flush()
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	b.appendTurn(req.SessionID, req.Message, reply)
	if !omitDone {
		writeData(w, glm.DoneSentinel, lines)
		flusher.Flush()
	}
}

func (b *Backend) handleHistory(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, "history") {
		return
	}
	id := r.URL.Query().Get("sessionId")

	b.mu.Lock()
	s := b.sessionLocked(id)
	data := glm.History{
		SessionID: id,
		History:   append([]glm.HistoryItem{}, s.history...),
		Character: s.character,
	}
	b.mu.Unlock()

	writeEnvelope(w, 0, "", data)
}

func (b *Backend) handleClear(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, "clear") {
		return
	}
	id := r.URL.Query().Get("sessionId")

	b.mu.Lock()
	if s, ok := b.sessions[id]; ok {
		s.history = nil
	}
	b.mu.Unlock()

	writeEnvelope(w, 0, "", nil)
}

func (b *Backend) handleCharacter(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, "character") {
		return
	}
	var req glm.CharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 400, "invalid request body", nil)
		return
	}

	b.mu.Lock()
	s := b.sessionLocked(req.SessionID)
	if req.CharacterID == "" && req.CharacterDescription == "" {
		s.character = nil
	} else {
		s.character = &glm.CharacterInfo{
			CharacterID:          req.CharacterID,
			CharacterDescription: req.CharacterDescription,
		}
	}
	s.history = nil
	b.mu.Unlock()

	writeEnvelope(w, 0, "", nil)
}

// failed writes the configured failure for route and reports whether it did.
func (b *Backend) failed(w http.ResponseWriter, route string) bool {
	status, code := b.begin(route)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return true
	}
	if code != 0 {
		writeEnvelope(w, code, fmt.Sprintf("%s rejected", route), nil)
		return true
	}
	return false
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(glm.Envelope[any]{Code: code, Msg: msg, Data: data})
}

// writeData writes text as data lines, one per line of text, followed by a
// blank line unless bare is set.
func writeData(w http.ResponseWriter, text string, bare bool) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	if !bare {
		fmt.Fprint(w, "\n")
	}
}
