// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/glmchat-tui/internal/actions"
	"github.com/jeranaias/glmchat-tui/internal/commands"
	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/export"
	"github.com/jeranaias/glmchat-tui/internal/render"
	"github.com/jeranaias/glmchat-tui/internal/store"
	"github.com/jeranaias/glmchat-tui/internal/ui/styles"
)

const inputHeight = 3

// =============================================================================
// CHAT MODEL
// =============================================================================

// Deps are the collaborators of the chat screen.
type Deps struct {
	Store    *store.Store
	Creators *actions.Creators
	Config   *config.Config
	Log      *zap.Logger
	// ExportDir receives /export files. Default: current directory.
	ExportDir string
}

// Model is the Bubble Tea model of the chat screen. It is used by pointer;
// the store listener writes to it.
type Model struct {
	store    *store.Store
	creators *actions.Creators
	log      *zap.Logger

	// Settings
	stream          bool
	typingIndicator bool
	messageDeletion bool
	maxLen          int
	exportDir       string

	theme    *styles.Theme
	renderer *render.Renderer

	registry  *commands.Registry
	parser    *commands.Parser
	completer *commands.Completer

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	keys     KeyMap

	// Dimensions
	width  int
	height int
	ready  bool

	// dirty is set by the store listener and cleared by sync.
	dirty       bool
	unsubscribe func()

	// notice is local feedback below the conversation, never stored.
	notice    string
	noticeErr bool
}

// New creates the chat model and subscribes it to the store.
func New(deps Deps) *Model {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message, or / for commands..."
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	registry := commands.NewRegistry()
	m := &Model{
		store:     deps.Store,
		creators:  deps.Creators,
		log:       log.Named("tui"),
		registry:  registry,
		parser:    commands.NewParser(registry),
		completer: commands.NewCompleter(registry),
		input:     ta,
		spinner:   sp,
		keys:      DefaultKeyMap(),
		exportDir: deps.ExportDir,
		dirty:     true,
	}
	m.applyConfig(cfg)
	m.unsubscribe = m.store.Subscribe(func() { m.dirty = true })
	return m
}

// Init starts the cursor blink, the spinner, and the initial history load.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
	)
}

// Close unsubscribes from the store.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Stream reports whether replies are streamed.
func (m *Model) Stream() bool { return m.stream }

// Notice returns the current local notice.
func (m *Model) Notice() string { return m.notice }

func (m *Model) applyConfig(cfg *config.Config) {
	m.stream = cfg.Chat.Stream
	m.typingIndicator = cfg.Chat.TypingIndicator
	m.messageDeletion = cfg.Chat.MessageDeletion
	m.maxLen = cfg.Chat.MaxMessageLength
	if m.maxLen <= 0 {
		m.maxLen = actions.DefaultMaxMessageLength
	}
	m.creators.SetMaxMessageLength(m.maxLen)

	m.theme = styles.NewTheme(cfg.UI.Theme)
	m.renderer = render.New(render.Options{
		Theme:    m.theme.GlamourStyle(),
		Markdown: cfg.UI.Markdown,
		WordWrap: cfg.UI.WordWrap,
	})
	m.dirty = true
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ExecMsg:
		msg()

	case startMsg:
		m.creators.Init()

	case ConfigMsg:
		if msg.Config != nil {
			m.applyConfig(msg.Config)
			m.setNotice("configuration reloaded", false)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, 1)
			m.ready = true
		}
		m.dirty = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	default:
		cmds = append(cmds, m.handleIntent(msg))
	}

	m.sync()
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Newline):
		m.input.InsertString("\n")
		return nil

	case key.Matches(msg, m.keys.Stop):
		switch {
		case m.creators.CancelStream():
			m.setNotice("stopped", false)
		case m.store.Error() != "":
			m.creators.DismissError()
		default:
			m.setNotice("", false)
		}
		return nil

	case key.Matches(msg, m.keys.NewChat):
		m.newChat()
		return nil

	case key.Matches(msg, m.keys.ClearHistory):
		m.creators.ClearHistory()
		return nil

	case key.Matches(msg, m.keys.ToggleStream):
		m.setStream(!m.stream)
		return nil

	case key.Matches(msg, m.keys.Complete):
		m.complete()
		return nil

	case key.Matches(msg, m.keys.Help):
		m.setNotice(commands.FormatHelp(m.registry), false)
		return nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// submit sends the input as a message or runs it as a command. The input is
// kept when the message is rejected before anything was sent.
func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if commands.IsCommand(text) {
		return m.runCommand(text)
	}

	m.setNotice("", false)
	var done <-chan error
	if m.stream {
		done = m.creators.SendMessageStream(text)
	} else {
		done = m.creators.SendMessage(text)
	}
	select {
	case err := <-done:
		if errors.Is(err, actions.ErrMessageTooLong) || errors.Is(err, actions.ErrEmptyMessage) {
			return nil
		}
	default:
	}
	m.input.Reset()
	return nil
}

func (m *Model) runCommand(text string) tea.Cmd {
	result := m.parser.Parse(text)
	if result.Error != nil {
		m.setNotice(result.Error.Error(), true)
		return nil
	}
	m.input.Reset()
	m.setNotice("", false)
	m.log.Debug("COMMAND", zap.String("name", result.Command.Name))
	return result.Command.Handler(m.commandContext(), result.Args)
}

func (m *Model) commandContext() *commands.Context {
	return &commands.Context{
		SessionID:    m.store.SessionID(),
		MessageCount: len(m.store.Messages()),
		Stream:       m.stream,
		Streaming:    m.creators.Streaming(),
		Persona:      m.store.Persona(),
	}
}

// handleIntent maps command results onto the action creators.
func (m *Model) handleIntent(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case commands.NewChatMsg:
		m.newChat()
	case commands.ClearHistoryMsg:
		m.creators.ClearHistory()
	case commands.LoadHistoryMsg:
		m.creators.LoadHistory()
	case commands.StopStreamMsg:
		m.creators.CancelStream()
	case commands.SetPersonaMsg:
		m.creators.SetPersona(msg.Config)
		m.setNotice("persona: "+msg.Config.Name(), false)
	case commands.DeleteMessageMsg:
		m.deleteMessage(msg.Index)
	case commands.ListPersonasMsg:
		m.setNotice(commands.FormatPersonas(m.store.Persona()), false)
	case commands.ToggleStreamMsg:
		on := !m.stream
		if msg.On != nil {
			on = *msg.On
		}
		m.setStream(on)
	case commands.ExportMsg:
		m.export(msg.Format)
	case commands.ShowSessionMsg:
		m.setNotice("session: "+m.store.SessionID(), false)
	case commands.ShowHelpMsg:
		m.setNotice(commands.FormatHelp(m.registry), false)
	case commands.NoticeMsg:
		m.setNotice(msg.Text, false)
	}
	return nil
}

func (m *Model) newChat() {
	if err := m.creators.NewChat(); err != nil {
		return
	}
	m.setNotice("new session "+m.store.SessionID(), false)
}

func (m *Model) deleteMessage(n int) {
	if !m.messageDeletion {
		m.setNotice("message deletion is disabled (chat.message_deletion)", true)
		return
	}
	msgs := m.store.Messages()
	if n < 1 || n > len(msgs) {
		m.setNotice(fmt.Sprintf("no message %d", n), true)
		return
	}
	m.creators.DeleteMessage(msgs[n-1].ID)
}

func (m *Model) export(format string) {
	opts := export.DefaultOptions()
	if m.exportDir != "" {
		opts.OutputDir = m.exportDir
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		m.setNotice(err.Error(), true)
		return
	}
	path, err := export.ToFile(&export.Transcript{
		SessionID:  m.store.SessionID(),
		Persona:    m.store.Persona(),
		Messages:   m.store.MessagesCopy(),
		ExportedAt: time.Now(),
	}, exp, opts)
	if err != nil {
		m.log.Warn("EXPORT_FAILED", zap.Error(err))
		m.setNotice(err.Error(), true)
		return
	}
	m.log.Info("EXPORTED", zap.String("path", path))
	m.setNotice("exported to "+path, false)
}

func (m *Model) setStream(on bool) {
	m.stream = on
	if on {
		m.setNotice("streaming on", false)
	} else {
		m.setNotice("streaming off", false)
	}
}

// complete expands a partial slash command.
func (m *Model) complete() {
	candidates := m.completer.Complete(m.input.Value())
	switch len(candidates) {
	case 0:
		return
	case 1:
		m.input.SetValue(candidates[0] + " ")
	default:
		if prefix := commands.CommonPrefix(candidates); len(prefix) > len(m.input.Value()) {
			m.input.SetValue(prefix)
		}
		m.setNotice(strings.Join(candidates, "  "), false)
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// sync resizes the layout and re-renders the conversation if it changed.
func (m *Model) sync() {
	if !m.ready {
		return
	}
	m.layout()
	if !m.dirty {
		return
	}
	m.dirty = false

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation(m.viewport.Width))
	if atBottom || m.creators.Streaming() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) layout() {
	m.input.SetWidth(max(m.width-4, 10))

	used := 1 + // header
		1 + // status line
		inputHeight + 2 + // input box
		1 // status bar
	if m.notice != "" {
		used += strings.Count(m.notice, "\n") + 1
	}
	height := max(m.height-used, 1)

	if m.viewport.Width != m.width {
		m.dirty = true
	}
	m.viewport.Width = m.width
	m.viewport.Height = height
}
