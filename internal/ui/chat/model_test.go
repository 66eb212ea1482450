// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glmchat-tui/internal/actions"
	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/flux"
	"github.com/jeranaias/glmchat-tui/internal/glm"
	"github.com/jeranaias/glmchat-tui/internal/glm/glmtest"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/jeranaias/glmchat-tui/internal/session"
	"github.com/jeranaias/glmchat-tui/internal/store"
)

const waitTimeout = 5 * time.Second

type chanSender chan tea.Msg

func (c chanSender) Send(msg tea.Msg) { c <- msg }

type harness struct {
	t        *testing.T
	m        *Model
	store    *store.Store
	backend  *glmtest.Backend
	sessions *session.Manager
	msgs     chanSender

	exportDir string
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	backend := glmtest.New(nil)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.UI.Markdown = false
	if mutate != nil {
		mutate(cfg)
	}

	msgs := make(chanSender, 1024)
	loop := flux.NewLoop()
	go func() { _ = loop.Pump(ctx, Forward(msgs)) }()

	d := flux.NewDispatcher(nil)
	s := store.New(d, flux.NewTimerFrames(loop, time.Millisecond))
	client := glm.NewClient(srv.URL + glmtest.Prefix).WithTimeout(waitTimeout)
	sessions := session.NewManager(filepath.Join(t.TempDir(), session.FileName))
	creators := actions.New(d, s, client, sessions, loop,
		actions.WithMaxMessageLength(cfg.Chat.MaxMessageLength))
	t.Cleanup(creators.Close)

	exportDir := t.TempDir()
	m := New(Deps{Store: s, Creators: creators, Config: cfg, ExportDir: exportDir})
	t.Cleanup(m.Close)

	h := &harness{t: t, m: m, store: s, backend: backend, sessions: sessions, msgs: msgs, exportDir: exportDir}
	h.update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return h
}

// update runs msg through the model and then every command it produces,
// except the recurring ones.
func (h *harness) update(msg tea.Msg) {
	h.t.Helper()
	_, cmd := h.m.Update(msg)
	h.runCmd(cmd)
}

func (h *harness) runCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.runCmd(c)
		}
	default:
		h.update(msg)
	}
}

// pumpUntil feeds posted work into the model until cond holds.
func (h *harness) pumpUntil(cond func() bool) {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for !cond() {
		select {
		case msg := <-h.msgs:
			h.update(msg)
		case <-deadline:
			h.t.Fatal("condition not reached")
		}
	}
}

func (h *harness) typeText(s string) {
	h.t.Helper()
	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) press(k tea.KeyType) {
	h.t.Helper()
	h.update(tea.KeyMsg{Type: k})
}

func (h *harness) submit(text string) {
	h.t.Helper()
	h.typeText(text)
	h.press(tea.KeyEnter)
}

func (h *harness) last() *model.Message {
	msgs := h.store.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (h *harness) sealedReply(content string) func() bool {
	return func() bool {
		last := h.last()
		return last != nil && last.Role == model.RoleAssistant && !last.IsStreaming && last.Content == content
	}
}

func TestStart_LoadsPersistedSession(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sessions.Set("s-1"))
	h.backend.Seed("s-1", []glm.HistoryItem{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}, &glm.CharacterInfo{CharacterID: "teacher"})

	h.update(startMsg{})
	h.pumpUntil(func() bool { return len(h.store.Messages()) == 2 })

	assert.Equal(t, "s-1", h.store.SessionID())
	view := h.m.View()
	assert.Contains(t, view, "earlier answer")
	assert.Contains(t, view, "Teacher")
}

func TestSubmit_StreamsReply(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("hello there")

	assert.Empty(t, h.m.input.Value(), "input is cleared once sent")
	h.pumpUntil(h.sealedReply("echo: hello there"))
	assert.False(t, h.store.Typing())
	assert.Equal(t, 1, h.backend.RequestCount("stream"))
	assert.Contains(t, h.m.View(), "echo: hello there")
}

func TestSubmit_BlockingWhenStreamOff(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Chat.Stream = false })
	h.submit("ping")

	h.pumpUntil(h.sealedReply("echo: ping"))
	assert.Equal(t, 1, h.backend.RequestCount("chat"))
	assert.Zero(t, h.backend.RequestCount("stream"))
}

func TestSubmit_TooLongKeepsInput(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Chat.MaxMessageLength = 5 })
	h.submit("much too long")

	assert.Equal(t, "much too long", h.m.input.Value())
	assert.Empty(t, h.store.Messages())
	assert.Contains(t, h.store.Error(), "too long")
	assert.Contains(t, h.m.View(), "13/5")

	h.press(tea.KeyEsc)
	assert.Empty(t, h.store.Error(), "esc dismisses the error")
}

func TestSubmit_BlankIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("   ")
	assert.Empty(t, h.store.Messages())
	assert.Empty(t, h.store.Error())
}

func TestCommand_Persona(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("/persona doctor")

	h.pumpUntil(func() bool { return h.store.Persona().PresetID == "doctor" })
	assert.Equal(t, "doctor", h.backend.CharacterOf(h.store.SessionID()).CharacterID)
	assert.Contains(t, h.m.View(), "Doctor")
}

func TestCommand_Unknown(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("/bogus")

	assert.True(t, h.m.noticeErr)
	assert.Contains(t, h.m.Notice(), "unknown command")
	assert.Equal(t, "/bogus", h.m.input.Value(), "a bad command stays editable")
}

func TestCommand_StreamToggle(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("/stream off")
	assert.False(t, h.m.Stream())

	h.press(tea.KeyCtrlS)
	assert.True(t, h.m.Stream())
}

func TestCommand_Delete(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("first")
	h.pumpUntil(h.sealedReply("echo: first"))

	h.submit("/delete 1")
	msgs := h.store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)

	h.submit("/delete 9")
	assert.Contains(t, h.m.Notice(), "no message 9")
}

func TestCommand_DeleteDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Chat.MessageDeletion = false })
	h.submit("first")
	h.pumpUntil(h.sealedReply("echo: first"))

	h.submit("/delete 1")
	assert.Len(t, h.store.Messages(), 2)
	assert.Contains(t, h.m.Notice(), "disabled")
}

func TestKeys_NewChatRotatesSession(t *testing.T) {
	h := newHarness(t, nil)
	h.update(startMsg{})
	h.pumpUntil(func() bool { return h.store.SessionID() != "" })
	before := h.store.SessionID()

	h.submit("hello")
	h.pumpUntil(h.sealedReply("echo: hello"))

	h.press(tea.KeyCtrlN)
	assert.Empty(t, h.store.Messages())
	assert.NotEqual(t, before, h.store.SessionID())
	assert.Equal(t, h.store.SessionID(), h.sessions.SessionID())
}

func TestKeys_ClearHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("hello")
	h.pumpUntil(h.sealedReply("echo: hello"))

	h.press(tea.KeyCtrlL)
	h.pumpUntil(func() bool { return len(h.store.Messages()) == 0 })
	assert.Equal(t, 1, h.backend.RequestCount("clear"))
}

func TestKeys_EscStopsStream(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Configure(func(b *glmtest.Backend) {
		b.Reply = func(string) string { return "one two three four five six" }
		b.ChunkDelay = 100 * time.Millisecond
	})
	h.submit("go")
	h.pumpUntil(func() bool {
		last := h.last()
		return last != nil && last.IsStreaming && last.Content != ""
	})

	h.press(tea.KeyEsc)
	assert.Equal(t, "stopped", h.m.Notice())
	h.pumpUntil(func() bool { return !h.last().IsStreaming })
	assert.Empty(t, h.store.Error(), "a user stop is not an error")
}

func TestKeys_TabCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.typeText("/personas")
	h.press(tea.KeyTab)
	assert.Equal(t, "/personas ", h.m.input.Value())

	h.m.input.SetValue("/pe")
	h.press(tea.KeyTab)
	assert.Equal(t, "/persona", h.m.input.Value())
	assert.Contains(t, h.m.Notice(), "/personas")
}

func TestConfigReload(t *testing.T) {
	h := newHarness(t, nil)
	cfg := config.Default()
	cfg.Chat.Stream = false
	cfg.Chat.MaxMessageLength = 42

	h.update(ConfigMsg{Config: cfg})
	assert.False(t, h.m.Stream())
	assert.Contains(t, h.m.View(), "0/42")
	assert.Equal(t, "configuration reloaded", h.m.Notice())
}

func TestView_WelcomeAndLayout(t *testing.T) {
	h := newHarness(t, nil)
	view := h.m.View()
	assert.Contains(t, view, "Start a conversation")
	assert.Contains(t, view, "GLM Chat")

	lines := strings.Split(view, "\n")
	assert.LessOrEqual(t, len(lines), 30)
}

func TestForward(t *testing.T) {
	msgs := make(chanSender, 1)
	ran := false
	Forward(msgs)(func() { ran = true })

	msg := <-msgs
	exec, ok := msg.(ExecMsg)
	require.True(t, ok)
	exec()
	assert.True(t, ran)
}

func TestCommand_Export(t *testing.T) {
	h := newHarness(t, nil)
	h.submit("/export")
	assert.Contains(t, h.m.Notice(), "nothing to export")

	h.submit("what is a goroutine")
	h.pumpUntil(h.sealedReply("echo: what is a goroutine"))

	h.submit("/export json")
	require.Contains(t, h.m.Notice(), "exported to ")
	path := strings.TrimPrefix(h.m.Notice(), "exported to ")
	assert.Equal(t, h.exportDir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo: what is a goroutine")
}
