// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns message content into terminal output.
//
// Sealed messages are rendered as markdown with glamour. A message that is
// still streaming is shown as wrapped plain text, since half a code fence
// renders badly and the content changes every frame anyway. Results are
// cached by message id and revision, so an unchanged message is never
// rendered twice.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/muesli/reflow/wordwrap"
)

// DefaultCacheSize bounds the number of cached renderings.
const DefaultCacheSize = 512

// Options configures a Renderer.
type Options struct {
	// Theme is "dark", "light" or "auto".
	Theme string
	// Markdown disables glamour when false.
	Markdown bool
	// WordWrap wraps plain text to the render width.
	WordWrap  bool
	CacheSize int
}

type cacheKey struct {
	id       string
	revision uint64
	width    int
}

// Renderer renders messages. It is safe for concurrent use.
type Renderer struct {
	opts Options

	mu       sync.Mutex
	terms    map[int]*glamour.TermRenderer
	cache    map[cacheKey]string
	order    []cacheKey
	hits     int
	misses   int
	disabled bool
}

// New creates a renderer.
func New(opts Options) *Renderer {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	return &Renderer{
		opts:  opts,
		terms: make(map[int]*glamour.TermRenderer),
		cache: make(map[cacheKey]string),
	}
}

// Message renders msg for a viewport of the given width.
func (r *Renderer) Message(msg *model.Message, width int) string {
	if msg == nil {
		return ""
	}
	if msg.IsStreaming {
		return r.Plain(msg.Content, width)
	}

	key := cacheKey{id: msg.ID, revision: msg.Revision, width: width}
	r.mu.Lock()
	if out, ok := r.cache[key]; ok {
		r.hits++
		r.mu.Unlock()
		return out
	}
	r.misses++
	r.mu.Unlock()

	var out string
	if msg.Role == model.RoleAssistant {
		out = r.Markdown(msg.Content, width)
	} else {
		out = r.Plain(msg.Content, width)
	}

	r.mu.Lock()
	r.store(key, out)
	r.mu.Unlock()
	return out
}

// Markdown renders text as markdown, falling back to plain text when
// markdown is disabled or glamour fails.
func (r *Renderer) Markdown(text string, width int) string {
	if !r.opts.Markdown {
		return r.Plain(text, width)
	}
	term := r.term(width)
	if term == nil {
		return r.Plain(text, width)
	}
	out, err := term.Render(text)
	if err != nil {
		return r.Plain(text, width)
	}
	return strings.Trim(out, "\n")
}

// Plain wraps text to width when word wrap is enabled.
func (r *Renderer) Plain(text string, width int) string {
	if !r.opts.WordWrap || width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}

// Stats returns cache hits and misses.
func (r *Renderer) Stats() (hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}

// Reset drops every cached rendering, e.g. after a theme change.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]string)
	r.order = nil
}

// store adds an entry, evicting the oldest when full. Caller holds mu.
func (r *Renderer) store(key cacheKey, out string) {
	if _, ok := r.cache[key]; ok {
		return
	}
	for len(r.order) >= r.opts.CacheSize {
		delete(r.cache, r.order[0])
		r.order = r.order[1:]
	}
	r.cache[key] = out
	r.order = append(r.order, key)
}

// term returns the glamour renderer for width, creating it on first use.
func (r *Renderer) term(width int) *glamour.TermRenderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return nil
	}
	if t, ok := r.terms[width]; ok {
		return t
	}

	opts := []glamour.TermRendererOption{styleOption(r.opts.Theme)}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	t, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		r.disabled = true
		return nil
	}
	r.terms[width] = t
	return t
}

func styleOption(theme string) glamour.TermRendererOption {
	switch strings.ToLower(theme) {
	case "light":
		return glamour.WithStandardStyle("light")
	case "dark":
		return glamour.WithStandardStyle("dark")
	case "ascii", "notty":
		return glamour.WithStandardStyle(strings.ToLower(theme))
	default:
		return glamour.WithAutoStyle()
	}
}
