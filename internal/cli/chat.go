// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/commands"
	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/render"
)

// HistoryFileName holds REPL input history inside the config directory.
const HistoryFileName = "chat_history"

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates the line editor. Tab completes slash commands.
func NewChatCLI(historyFile string, completer *commands.Completer) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		return completer.Complete(input)
	})

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// SaveHistory writes input history to file.
func (c *ChatCLI) SaveHistory() error {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = c.line.WriteHistory(f)
	return err
}

// ReadInput reads one line. Non-blank input is added to history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	err := c.SaveHistory()
	c.line.Close()
	return err
}

// =============================================================================
// REPL
// =============================================================================

// lineReader is the part of ChatCLI the session uses.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

// chatSession is one REPL run.
type chatSession struct {
	rt       *Runtime
	out      io.Writer
	in       lineReader
	renderer *render.Renderer
	registry *commands.Registry
	parser   *commands.Parser
	printer  *streamPrinter
	stream   bool
	width    int
}

func newChatSession(rt *Runtime, in lineReader, out io.Writer) *chatSession {
	registry := commands.NewRegistry()
	cfg := rt.Config
	return &chatSession{
		rt:       rt,
		out:      out,
		in:       in,
		renderer: newRenderer(cfg.UI.Markdown, cfg.UI.WordWrap, cfg.UI.Theme),
		registry: registry,
		parser:   commands.NewParser(registry),
		printer:  newStreamPrinter(out, rt.Store),
		stream:   cfg.Chat.Stream,
		width:    GetTerminalWidth(),
	}
}

// RunChat runs the interactive REPL until /quit or end of input.
func RunChat(rt *Runtime) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	registry := commands.NewRegistry()
	line := NewChatCLI(filepath.Join(dir, HistoryFileName), commands.NewCompleter(registry))
	defer func() {
		if err := line.Close(); err != nil {
			rt.Log.Warn("HISTORY_SAVE_FAILED", zap.Error(err))
		}
	}()

	return newChatSession(rt, line, os.Stdout).run()
}

func (s *chatSession) run() error {
	var unsubscribe func()
	if err := s.rt.Do(func() {
		unsubscribe = s.rt.Store.Subscribe(s.printer.onChange)
	}); err != nil {
		return err
	}
	defer func() { _ = s.rt.Do(unsubscribe) }()

	if err := s.rt.Wait(s.rt.Creators.Init); err != nil {
		s.fail(err)
	}
	snap, err := s.rt.Snapshot()
	if err != nil {
		return err
	}
	s.banner(snap)
	if len(snap.Messages) > 0 {
		printConversation(s.out, s.renderer, snap, s.width)
		fmt.Fprintln(s.out)
	}

	for {
		input, err := s.in.ReadInput("> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out)
			return nil
		case err != nil:
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if commands.IsCommand(input) {
			if quit := s.command(input); quit {
				return nil
			}
			continue
		}
		s.send(input)
	}
}

func (s *chatSession) banner(snap Snapshot) {
	fmt.Fprintln(s.out, TitleStyle.Render("GLM Chat"))
	fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("session %s · persona %s %s · /help for commands, Ctrl+D to exit",
		snap.SessionID, snap.Persona.Icon(), snap.Persona.Name())))
	fmt.Fprintln(s.out)
}

// send submits one message and prints the reply. Ctrl+C stops a stream.
func (s *chatSession) send(text string) {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	var done <-chan error
	if err := s.rt.Do(func() {
		if s.stream {
			done = s.rt.Creators.SendMessageStream(text)
			s.printer.follow()
		} else {
			done = s.rt.Creators.SendMessage(text)
		}
	}); err != nil {
		s.fail(err)
		return
	}

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		case <-interrupts:
			_ = s.rt.Do(func() { s.rt.Creators.CancelStream() })
		case <-s.rt.Context().Done():
			err = s.rt.Context().Err()
			break wait
		}
	}

	if s.stream {
		fmt.Fprintln(s.out)
	}
	if err != nil {
		s.fail(err)
		return
	}
	if !s.stream {
		s.printLastReply()
	}
}

func (s *chatSession) printLastReply() {
	snap, err := s.rt.Snapshot()
	if err != nil || len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	fmt.Fprintln(s.out, strings.TrimRight(s.renderer.Message(last, s.width), "\n"))
}

func (s *chatSession) fail(err error) {
	snap, _ := s.rt.Snapshot()
	reportFailure(s.out, err, snap.Error)
	if snap.Error != "" {
		_ = s.rt.Do(s.rt.Creators.DismissError)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs a slash command and reports whether the REPL should exit.
func (s *chatSession) command(input string) bool {
	result := s.parser.Parse(input)
	if result.Error != nil {
		DisplayError(s.out, result.Error)
		return false
	}

	snap, err := s.rt.Snapshot()
	if err != nil {
		return true
	}
	ctx := &commands.Context{
		SessionID:    snap.SessionID,
		MessageCount: len(snap.Messages),
		Stream:       s.stream,
		Persona:      snap.Persona,
	}
	cmd := result.Command.Handler(ctx, result.Args)
	if cmd == nil {
		return false
	}
	return s.handle(cmd(), snap)
}

func (s *chatSession) handle(msg tea.Msg, snap Snapshot) bool {
	c := s.rt.Creators
	switch msg := msg.(type) {
	case tea.QuitMsg:
		return true

	case commands.NewChatMsg:
		var err error
		_ = s.rt.Do(func() { err = c.NewChat() })
		if err != nil {
			s.fail(err)
			break
		}
		next, _ := s.rt.Snapshot()
		s.ok("new session " + next.SessionID)

	case commands.ClearHistoryMsg:
		if err := s.rt.Wait(c.ClearHistory); err != nil {
			s.fail(err)
			break
		}
		s.ok("conversation cleared")

	case commands.LoadHistoryMsg:
		if err := s.rt.Wait(c.LoadHistory); err != nil {
			s.fail(err)
			break
		}
		next, _ := s.rt.Snapshot()
		printConversation(s.out, s.renderer, next, s.width)

	case commands.DeleteMessageMsg:
		if !s.rt.Config.Chat.MessageDeletion {
			DisplayError(s.out, errors.New("message deletion is disabled (chat.message_deletion)"))
			break
		}
		if msg.Index > len(snap.Messages) {
			DisplayError(s.out, fmt.Errorf("no message %d", msg.Index))
			break
		}
		id := snap.Messages[msg.Index-1].ID
		_ = s.rt.Do(func() { c.DeleteMessage(id) })
		s.ok(fmt.Sprintf("deleted message %d (local only)", msg.Index))

	case commands.StopStreamMsg:
		_ = s.rt.Do(func() { c.CancelStream() })

	case commands.SetPersonaMsg:
		cfg := msg.Config
		if err := s.rt.Wait(func() <-chan error { return c.SetPersona(cfg) }); err != nil {
			s.fail(err)
			break
		}
		s.ok("persona: " + cfg.Icon() + " " + cfg.Name())

	case commands.ListPersonasMsg:
		fmt.Fprintln(s.out, commands.FormatPersonas(snap.Persona))

	case commands.ToggleStreamMsg:
		s.stream = !s.stream
		if msg.On != nil {
			s.stream = *msg.On
		}
		if s.stream {
			s.ok("streaming on")
		} else {
			s.ok("streaming off")
		}

	case commands.ExportMsg:
		path, err := exportSnapshot(snap, msg.Format, ".")
		if err != nil {
			DisplayError(s.out, err)
			break
		}
		s.ok("exported to " + path)

	case commands.ShowSessionMsg:
		fmt.Fprintln(s.out, snap.SessionID)

	case commands.ShowHelpMsg:
		fmt.Fprintln(s.out, commands.FormatHelp(s.registry))

	case commands.NoticeMsg:
		fmt.Fprintln(s.out, DimStyle.Render(msg.Text))
	}
	return false
}

func (s *chatSession) ok(text string) {
	fmt.Fprintln(s.out, SuccessStyle.Render(text))
}

