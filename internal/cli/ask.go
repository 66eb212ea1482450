// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jeranaias/glmchat-tui/internal/commands"
	"github.com/jeranaias/glmchat-tui/internal/model"
)

// AskOptions configures a one-shot question.
type AskOptions struct {
	// Stream prints the reply as it arrives. Ignored for JSON and for
	// markdown output, which need the whole reply.
	Stream bool
	// Markdown renders the reply when stdout is a terminal.
	Markdown bool
	JSON     bool
	// NewSession asks in a fresh session instead of the persisted one.
	NewSession bool
	// Persona is applied before asking: a preset id, "none", or custom text.
	Persona string
}

// AskResult is the JSON output of ask.
type AskResult struct {
	SessionID string `json:"session_id"`
	Persona   string `json:"persona"`
	Reply     string `json:"reply"`
}

// ReadQuestion joins args into the question. "-" or no args on a non-TTY
// stdin reads the question from stdin.
func ReadQuestion(args []string, stdin io.Reader, stdinIsTTY bool) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "-" || (question == "" && !stdinIsTTY) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", &UsageError{Message: "no question given", Usage: `glmchat ask "question"`}
	}
	return question, nil
}

// RunAsk sends one question and writes the reply to out. Ctrl+C cancels a
// streamed reply.
func RunAsk(rt *Runtime, question string, opts AskOptions, out io.Writer) error {
	c := rt.Creators
	if opts.NewSession {
		if err := rt.Do(func() { _ = c.NewChat() }); err != nil {
			return err
		}
	} else if err := rt.Do(func() { c.Resume() }); err != nil {
		return err
	}

	if opts.Persona != "" {
		cfg := commands.ParsePersona(opts.Persona)
		if err := rt.Wait(func() <-chan error { return c.SetPersona(cfg) }); err != nil {
			return NewCommandError("ask", "set persona", err)
		}
	}

	renderMarkdown := opts.Markdown && IsStdoutTTY() && !opts.JSON
	live := opts.Stream && !opts.JSON && !renderMarkdown

	var unsubscribe func()
	printer := newStreamPrinter(out, rt.Store)
	if live {
		if err := rt.Do(func() { unsubscribe = rt.Store.Subscribe(printer.onChange) }); err != nil {
			return err
		}
		defer func() { _ = rt.Do(unsubscribe) }()
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	var done <-chan error
	if err := rt.Do(func() {
		if opts.Stream {
			done = c.SendMessageStream(question)
			printer.follow()
		} else {
			done = c.SendMessage(question)
		}
	}); err != nil {
		return err
	}

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		case <-interrupts:
			_ = rt.Do(func() { c.CancelStream() })
		case <-rt.Context().Done():
			err = rt.Context().Err()
			break wait
		}
	}
	if live {
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	snap, err := rt.Snapshot()
	if err != nil {
		return err
	}
	reply := lastAssistant(snap.Messages)

	switch {
	case opts.JSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(AskResult{
			SessionID: snap.SessionID,
			Persona:   snap.Persona.Name(),
			Reply:     reply,
		})
	case renderMarkdown:
		r := newRenderer(true, rt.Config.UI.WordWrap, rt.Config.UI.Theme)
		fmt.Fprintln(out, r.Markdown(reply, GetTerminalWidth()))
	case !live:
		fmt.Fprintln(out, reply)
	}
	return nil
}

func lastAssistant(msgs []*model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}
