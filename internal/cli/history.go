// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/glmchat-tui/internal/commands"
	"github.com/jeranaias/glmchat-tui/internal/model"
)

// HistoryEntry is one message in JSON output.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResult is the JSON output of history.
type HistoryResult struct {
	SessionID string         `json:"session_id"`
	Persona   string         `json:"persona"`
	Messages  []HistoryEntry `json:"messages"`
}

// RunHistory loads the persisted session's conversation and prints it.
func RunHistory(rt *Runtime, jsonMode bool, out io.Writer) error {
	if err := rt.Wait(rt.Creators.Init); err != nil {
		return NewCommandError("history", "load history", err)
	}
	snap, err := rt.Snapshot()
	if err != nil {
		return err
	}

	if jsonMode {
		result := HistoryResult{
			SessionID: snap.SessionID,
			Persona:   snap.Persona.Name(),
			Messages:  make([]HistoryEntry, 0, len(snap.Messages)),
		}
		for _, m := range snap.Messages {
			result.Messages = append(result.Messages, HistoryEntry{
				Role:      string(m.Role),
				Content:   m.Content,
				Timestamp: m.Timestamp,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	cfg := rt.Config
	r := newRenderer(cfg.UI.Markdown, cfg.UI.WordWrap, cfg.UI.Theme)
	printConversation(out, r, snap, GetTerminalWidth())
	return nil
}

// RunClear clears the persisted session's conversation on the server.
func RunClear(rt *Runtime, out io.Writer) error {
	var id string
	if err := rt.Do(func() { id = rt.Creators.Resume() }); err != nil {
		return err
	}
	if err := rt.Wait(rt.Creators.ClearHistory); err != nil {
		return NewCommandError("clear", "clear history", err)
	}
	fmt.Fprintln(out, SuccessStyle.Render("cleared session "+id))
	return nil
}

// RunPersona sets the persona of the persisted session. An empty choice
// lists the presets with the active one marked.
func RunPersona(rt *Runtime, choice string, out io.Writer) error {
	if choice == "" {
		if err := rt.Wait(rt.Creators.Init); err != nil {
			return NewCommandError("persona", "load history", err)
		}
		snap, err := rt.Snapshot()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, commands.FormatPersonas(snap.Persona))
		return nil
	}

	cfg := commands.ParsePersona(choice)
	if err := rt.Do(func() { rt.Creators.Resume() }); err != nil {
		return err
	}
	if err := rt.Wait(func() <-chan error { return rt.Creators.SetPersona(cfg) }); err != nil {
		return NewCommandError("persona", "set persona", err)
	}
	fmt.Fprintln(out, SuccessStyle.Render(personaLine(cfg)))
	return nil
}

func personaLine(cfg model.PersonaConfig) string {
	if cfg.IsNone() {
		return "persona cleared"
	}
	return "persona: " + cfg.Icon() + " " + cfg.Name()
}
