// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/glmchat-tui/internal/model"
)

// =============================================================================
// INTENT MESSAGES
// =============================================================================

// NewChatMsg starts a new conversation with a fresh session.
type NewChatMsg struct{}

// ClearHistoryMsg clears the conversation on the server.
type ClearHistoryMsg struct{}

// LoadHistoryMsg reloads the conversation from the server.
type LoadHistoryMsg struct{}

// DeleteMessageMsg removes the Index-th message, counting from 1.
type DeleteMessageMsg struct {
	Index int
}

// StopStreamMsg cancels the reply being streamed.
type StopStreamMsg struct{}

// SetPersonaMsg changes the persona.
type SetPersonaMsg struct {
	Config model.PersonaConfig
}

// ListPersonasMsg asks for the preset list to be shown.
type ListPersonasMsg struct{}

// ToggleStreamMsg switches streaming replies. A nil On flips the setting.
type ToggleStreamMsg struct {
	On *bool
}

// ExportMsg asks for the conversation to be written to a file.
type ExportMsg struct {
	Format string
}

// ShowSessionMsg asks for the session id to be shown.
type ShowSessionMsg struct{}

// ShowHelpMsg asks for the command list to be shown.
type ShowHelpMsg struct{}

// NoticeMsg is informational text for the user.
type NoticeMsg struct {
	Text string
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// =============================================================================
// HANDLERS
// =============================================================================

// HandleHelp shows the command list.
func HandleHelp(_ *Context, _ []string) tea.Cmd {
	return emit(ShowHelpMsg{})
}

// HandleQuit exits.
func HandleQuit(_ *Context, _ []string) tea.Cmd {
	return tea.Quit
}

// HandleNew starts a new chat.
func HandleNew(_ *Context, _ []string) tea.Cmd {
	return emit(NewChatMsg{})
}

// HandleClear clears history.
func HandleClear(_ *Context, _ []string) tea.Cmd {
	return emit(ClearHistoryMsg{})
}

// HandleHistory reloads history.
func HandleHistory(_ *Context, _ []string) tea.Cmd {
	return emit(LoadHistoryMsg{})
}

// HandleExport writes the conversation to a file, markdown by default.
func HandleExport(ctx *Context, args []string) tea.Cmd {
	if ctx != nil && ctx.MessageCount == 0 {
		return emit(NoticeMsg{Text: "nothing to export"})
	}
	format := "markdown"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	return emit(ExportMsg{Format: format})
}

// HandleDelete removes one message by its 1-based position.
func HandleDelete(ctx *Context, args []string) tea.Cmd {
	if len(args) == 0 {
		return emit(NoticeMsg{Text: "usage: /delete <n>"})
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return emit(NoticeMsg{Text: "message number must be a positive integer"})
	}
	if ctx != nil && n > ctx.MessageCount {
		return emit(NoticeMsg{Text: fmt.Sprintf("no message %d (conversation has %d)", n, ctx.MessageCount)})
	}
	return emit(DeleteMessageMsg{Index: n})
}

// HandleStop cancels the active stream.
func HandleStop(ctx *Context, _ []string) tea.Cmd {
	if ctx != nil && !ctx.Streaming {
		return emit(NoticeMsg{Text: "nothing is streaming"})
	}
	return emit(StopStreamMsg{})
}

// HandlePersona accepts a preset id, "none", or any other text as a custom
// system prompt.
func HandlePersona(ctx *Context, args []string) tea.Cmd {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		name := "AI"
		if ctx != nil {
			name = ctx.Persona.Name()
		}
		return emit(NoticeMsg{Text: "current persona: " + name})
	}
	return emit(SetPersonaMsg{Config: ParsePersona(text)})
}

// ParsePersona maps user text onto a persona configuration.
func ParsePersona(text string) model.PersonaConfig {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "none") || strings.EqualFold(text, "off") {
		return model.NoPersona()
	}
	if p, ok := model.FindPreset(text); ok {
		return model.PresetPersona(p)
	}
	return model.CustomPersona(text)
}

// HandlePersonas lists presets.
func HandlePersonas(_ *Context, _ []string) tea.Cmd {
	return emit(ListPersonasMsg{})
}

// HandleStream toggles streaming, or sets it explicitly with on/off.
func HandleStream(_ *Context, args []string) tea.Cmd {
	if len(args) == 0 {
		return emit(ToggleStreamMsg{})
	}
	on := strings.EqualFold(args[0], "on")
	return emit(ToggleStreamMsg{On: &on})
}

// HandleSession shows the session id.
func HandleSession(_ *Context, _ []string) tea.Cmd {
	return emit(ShowSessionMsg{})
}

// =============================================================================
// FORMATTING
// =============================================================================

var categoryOrder = []string{"Conversation", "Persona", "Settings", "General"}

// FormatHelp renders the visible commands grouped by category.
func FormatHelp(r *Registry) string {
	var b strings.Builder
	groups := r.ByCategory()
	for _, category := range categoryOrder {
		cmds := groups[category]
		if len(cmds) == 0 {
			continue
		}
		b.WriteString(category)
		b.WriteString(":\n")
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&b, "  %-28s %s\n", usage, cmd.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPersonas lists the presets, marking the active one.
func FormatPersonas(active model.PersonaConfig) string {
	var b strings.Builder
	for _, p := range model.Presets {
		marker := " "
		if active.Mode == model.PersonaPreset && active.PresetID == p.ID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s %-11s %s\n", marker, p.Icon, p.ID, p.Description)
	}
	b.WriteString("  use /persona <id>, /persona none, or /persona <your own prompt>")
	return b.String()
}
