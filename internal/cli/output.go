// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/indent"

	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/render"
	"github.com/jeranaias/glmchat-tui/internal/store"
)

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the growing content of one streamed message as it
// changes. It is a store listener and runs on the owner goroutine.
type streamPrinter struct {
	out     io.Writer
	store   *store.Store
	id      string
	printed string
}

func newStreamPrinter(out io.Writer, s *store.Store) *streamPrinter {
	return &streamPrinter{out: out, store: s}
}

// follow starts printing the message being streamed, if any.
func (p *streamPrinter) follow() {
	p.id, p.printed = "", ""
	if msg := p.store.StreamingMessage(); msg != nil {
		p.id = msg.ID
	}
}

func (p *streamPrinter) onChange() {
	if p.id == "" {
		return
	}
	msg := p.store.MessageByID(p.id)
	if msg == nil {
		p.id = ""
		return
	}

	content := msg.Content
	switch {
	case !msg.IsStreaming && p.printed == "" && content == model.InterruptedMarker:
		fmt.Fprint(p.out, WarningStyle.Render(content))
	case strings.HasPrefix(content, p.printed):
		fmt.Fprint(p.out, content[len(p.printed):])
		p.printed = content
	}
	if !msg.IsStreaming {
		p.id = ""
	}
}

// =============================================================================
// MESSAGE FORMATTING
// =============================================================================

// formatMessage renders one message for line-mode output.
func formatMessage(r *render.Renderer, msg *model.Message, persona model.PersonaConfig, width int) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = UserStyle.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = AssistantStyle.Render(persona.Icon() + " " + persona.Name())
	default:
		label = DimStyle.Render(msg.Role.DisplayName())
	}
	header := label + "  " + DimStyle.Render(msg.Timestamp.Format("2006-01-02 15:04"))

	body := msg.Content
	if r != nil {
		body = r.Message(msg, width-2)
	}
	return header + "\n" + indent.String(strings.TrimRight(body, "\n"), 2)
}

// printConversation writes every message, oldest first.
func printConversation(w io.Writer, r *render.Renderer, snap Snapshot, width int) {
	if len(snap.Messages) == 0 {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for i, msg := range snap.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, formatMessage(r, msg, snap.Persona, width))
	}
}

// reportFailure prints the user-facing text of a failed operation. A user
// cancellation is reported as a stop, not an error.
func reportFailure(w io.Writer, err error, storeErr string) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, WarningStyle.Render("[stopped]"))
		return
	}
	text := storeErr
	if text == "" {
		text = err.Error()
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), text)
}

// newRenderer builds a renderer for line-mode output. Markdown is only used
// on a terminal.
func newRenderer(markdown, wordWrap bool, theme string) *render.Renderer {
	if !IsStdoutTTY() {
		markdown = false
	}
	if !ColorsEnabled() {
		theme = "notty"
	}
	return render.New(render.Options{
		Theme:    theme,
		Markdown: markdown,
		WordWrap: wordWrap,
	})
}
