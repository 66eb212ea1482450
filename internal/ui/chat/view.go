// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"

	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/util"
)

const streamCursor = "▍"

// View renders the screen.
func (m *Model) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatusLine(),
	}
	if m.notice != "" {
		style := m.theme.Notice
		if m.noticeErr {
			style = m.theme.Error
		}
		parts = append(parts, style.Render(m.notice))
	}
	parts = append(parts,
		m.theme.Input.Width(max(m.width-2, 10)).Render(m.input.View()),
		m.renderStatusBar(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER
// =============================================================================

func (m *Model) renderHeader() string {
	persona := m.store.Persona()
	mode := "blocking"
	if m.stream {
		mode = "stream"
	}
	session := m.store.SessionID()
	if session == "" {
		session = "-"
	}

	title := m.theme.HeaderTitle.Render("GLM Chat")
	meta := m.theme.HeaderMeta.Render(fmt.Sprintf("%s %s · %s · %s",
		persona.Icon(), persona.Name(), util.TruncateRunes(session, 12), mode))

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(meta)-2, 1)
	line := title + strings.Repeat(" ", gap) + meta
	return m.theme.Header.Width(m.width).Render(truncate.StringWithTail(line, uint(max(m.width-2, 1)), "..."))
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m *Model) renderConversation(width int) string {
	msgs := m.store.Messages()
	if len(msgs) == 0 {
		return m.renderWelcome()
	}

	blocks := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		blocks = append(blocks, m.renderMessage(i+1, msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderWelcome() string {
	persona := m.store.Persona()
	lines := []string{
		"",
		m.theme.HeaderTitle.Render("  " + persona.Icon() + " Start a conversation"),
		m.theme.ShortcutDesc.Render("  Type a message and press Enter. /help lists commands, /personas the presets."),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderMessage(n int, msg *model.Message, width int) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		persona := m.store.Persona()
		label = m.theme.AssistantLabel.Render(persona.Icon() + " " + persona.Name())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}

	meta := msg.Timestamp.Format("15:04")
	if m.messageDeletion {
		meta = fmt.Sprintf("#%d  %s", n, meta)
	}
	header := label + "  " + m.theme.Timestamp.Render(meta)

	var body string
	switch {
	case msg.IsStreaming:
		body = m.theme.Streaming.Render(m.renderer.Message(msg, width-2)) + streamCursor
	case msg.Content == model.InterruptedMarker:
		body = m.theme.Interrupted.Render(msg.Content)
	default:
		body = m.renderer.Message(msg, width-2)
	}
	return header + "\n" + indent.String(body, 2)
}

// =============================================================================
// STATUS
// =============================================================================

// renderStatusLine shows typing, the store error, and the input counter.
func (m *Model) renderStatusLine() string {
	n := util.RuneLen(m.input.Value())
	count := fmt.Sprintf("%d/%d", n, m.maxLen)
	room := max(m.width-len(count)-2, 1)
	if n > m.maxLen {
		count = m.theme.CharOver.Render(count)
	} else {
		count = m.theme.CharCount.Render(count)
	}

	var left string
	switch {
	case m.store.Error() != "":
		text := util.TruncateWidth("✗ "+util.SingleLine(m.store.Error()), max(room-18, 1))
		left = m.theme.Error.Render(text) + m.theme.ShortcutDesc.Render("  (esc to dismiss)")
	case m.store.Typing() && m.typingIndicator:
		text := util.TruncateWidth(m.store.Persona().Name()+" is typing...", max(room-2, 1))
		left = m.spinner.View() + " " + m.theme.Typing.Render(text)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(count), 1)
	return left + strings.Repeat(" ", gap) + count
}

func (m *Model) renderStatusBar() string {
	items := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		items = append(items, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return m.theme.StatusBar.Render(truncate.String(strings.Join(items, "  "), uint(max(m.width-2, 1))))
}
