// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"strings"
	"testing"

	"github.com/jeranaias/glmchat-tui/internal/flux"
	"github.com/jeranaias/glmchat-tui/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	d       *flux.Dispatcher
	frames  *flux.ManualFrames
	store   *Store
	notices int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		d:      flux.NewDispatcher(nil),
		frames: flux.NewManualFrames(),
	}
	h.store = New(h.d, h.frames)
	h.store.Subscribe(func() { h.notices++ })
	t.Cleanup(h.store.Close)
	return h
}

func (h *harness) addPlaceholder() *model.Message {
	msg := model.NewStreamingPlaceholder()
	h.d.Dispatch(flux.AddMessage{Message: msg})
	return msg
}

func streamingCount(msgs []*model.Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsStreaming {
			n++
		}
	}
	return n
}

// =============================================================================
// STRUCTURAL ACTIONS
// =============================================================================

func TestStore_AddMessageNotifiesImmediately(t *testing.T) {
	h := newHarness(t)

	h.d.Dispatch(flux.AddMessage{Message: model.NewUserMessage("hi")})

	assert.Equal(t, 1, h.notices)
	require.Len(t, h.store.Messages(), 1)
	assert.Equal(t, "hi", h.store.Messages()[0].Content)
}

func TestStore_DuplicateIDIgnored(t *testing.T) {
	h := newHarness(t)
	msg := model.NewUserMessage("one")

	h.d.Dispatch(flux.AddMessage{Message: msg})
	h.d.Dispatch(flux.AddMessage{Message: msg})
	h.d.Dispatch(flux.AddMessage{Message: nil})

	assert.Len(t, h.store.Messages(), 1)
	assert.Equal(t, 1, h.notices)
}

func TestStore_UniqueIDsAcrossManyAdds(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 200; i++ {
		h.d.Dispatch(flux.AddMessage{Message: model.NewUserMessage("x")})
	}

	seen := make(map[string]bool)
	for _, m := range h.store.Messages() {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 200)
}

func TestStore_AtMostOneStreaming(t *testing.T) {
	h := newHarness(t)

	first := h.addPlaceholder()
	h.d.Dispatch(flux.UpdateMessage{ID: first.ID, Patch: model.ContentPatch("part")})
	second := h.addPlaceholder()

	msgs := h.store.Messages()
	assert.Equal(t, 1, streamingCount(msgs))
	assert.False(t, h.store.MessageByID(first.ID).IsStreaming)
	assert.Equal(t, "part", h.store.MessageByID(first.ID).Content)
	assert.Equal(t, second.ID, h.store.StreamingMessage().ID)
}

func TestStore_ScalarActions(t *testing.T) {
	h := newHarness(t)

	h.d.Dispatch(flux.SetTyping{Typing: true})
	h.d.Dispatch(flux.SetError{Message: "boom"})
	h.d.Dispatch(flux.SetSessionID{SessionID: "session_1"})
	doctor, _ := model.FindPreset("doctor")
	h.d.Dispatch(flux.SetPersona{Config: model.PresetPersona(doctor)})

	assert.True(t, h.store.Typing())
	assert.Equal(t, "boom", h.store.Error())
	assert.Equal(t, "session_1", h.store.SessionID())
	assert.Equal(t, model.PersonaPreset, h.store.Persona().Mode)
	assert.Equal(t, 4, h.notices)

	h.d.Dispatch(flux.ResetError{})
	assert.Empty(t, h.store.Error())
	assert.Equal(t, uint64(5), h.store.Version())
}

func TestStore_DeleteAndClear(t *testing.T) {
	h := newHarness(t)
	a := model.NewUserMessage("a")
	b := model.NewAssistantMessage("b")
	h.d.Dispatch(flux.AddMessage{Message: a})
	h.d.Dispatch(flux.AddMessage{Message: b})

	h.d.Dispatch(flux.DeleteMessage{ID: a.ID})
	require.Len(t, h.store.Messages(), 1)
	assert.Equal(t, b.ID, h.store.Messages()[0].ID)

	h.d.Dispatch(flux.ClearMessages{})
	assert.Empty(t, h.store.Messages())
	assert.Equal(t, 4, h.notices)
}

// =============================================================================
// LOOKUP MISS
// =============================================================================

func TestStore_LookupMissIsNoop(t *testing.T) {
	h := newHarness(t)
	kept := model.NewUserMessage("kept")
	h.d.Dispatch(flux.AddMessage{Message: kept})
	before := h.store.Version()
	notices := h.notices

	assert.NotPanics(t, func() {
		h.d.Dispatch(flux.UpdateMessage{ID: "gone", Patch: model.SealPatch("late")})
		h.d.Dispatch(flux.DeleteMessage{ID: "gone"})
	})

	assert.Equal(t, before, h.store.Version())
	assert.Equal(t, notices, h.notices)
	assert.Equal(t, 0, h.frames.Pending())
	require.Len(t, h.store.Messages(), 1)
	assert.Equal(t, "kept", h.store.Messages()[0].Content)
	assert.Equal(t, kept.Revision, h.store.Messages()[0].Revision)
}

func TestStore_LateChunkAfterClear(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	h.d.Dispatch(flux.ClearMessages{})

	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch("late")})
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.SealPatch("late")})

	assert.Empty(t, h.store.Messages())
}

// =============================================================================
// STREAMING UPDATES
// =============================================================================

func TestStore_CoalescesStreamingUpdates(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	base := h.notices

	chunks := []string{"The ", "quick ", "brown ", "fox"}
	var total strings.Builder
	for _, c := range chunks {
		total.WriteString(c)
		h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch(total.String())})
	}

	assert.Equal(t, base, h.notices, "no synchronous notification while streaming")
	assert.Equal(t, 1, h.frames.Pending(), "one frame for many chunks")

	var seen string
	h.store.Subscribe(func() { seen = h.store.MessageByID(p.ID).Content })
	assert.Equal(t, 1, h.frames.Flush())
	assert.Equal(t, base+1, h.notices)
	assert.Equal(t, "The quick brown fox", seen)
	assert.Equal(t, uint64(1+len(chunks)), h.store.MessageByID(p.ID).Revision)
}

func TestStore_SealNotifiesImmediatelyAndCancelsFrame(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	base := h.notices

	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch("Hi")})
	require.True(t, h.store.HasPendingFrame())

	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.SealPatch("Hi there")})

	assert.Equal(t, base+1, h.notices)
	assert.False(t, h.store.HasPendingFrame())
	assert.Equal(t, 0, h.frames.Flush(), "cancelled frame must not fire")

	final := h.store.MessageByID(p.ID)
	assert.Equal(t, "Hi there", final.Content)
	assert.False(t, final.IsStreaming)
	assert.Equal(t, model.RoleAssistant, final.Role)
}

func TestStore_StructuralChangeCancelsPendingFrame(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch("x")})

	h.d.Dispatch(flux.SetTyping{Typing: false})
	assert.False(t, h.store.HasPendingFrame())
	assert.Equal(t, 0, h.frames.Flush())
}

func TestStore_SealMonotonicity(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.SealPatch("final")})
	sealed := h.store.MessageByID(p.ID)

	reopen := true
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch("changed")})
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.MessagePatch{IsStreaming: &reopen}})
	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.SealPatch("changed again")})

	got := h.store.MessageByID(p.ID)
	assert.Equal(t, "final", got.Content)
	assert.False(t, got.IsStreaming)
	assert.Equal(t, sealed.Revision, got.Revision)
}

func TestStore_UpdateNonStreamingMessageCoalesces(t *testing.T) {
	h := newHarness(t)
	user := model.NewUserMessage("draft")
	h.d.Dispatch(flux.AddMessage{Message: user})
	h.notices = 0

	h.d.Dispatch(flux.UpdateMessage{ID: user.ID, Patch: model.ContentPatch("edited")})
	assert.Equal(t, 0, h.notices, "waits for the frame")
	assert.True(t, h.store.HasPendingFrame())
	assert.Equal(t, "edited", h.store.MessageByID(user.ID).Content)

	require.Equal(t, 1, h.frames.Flush())
	assert.Equal(t, 1, h.notices)

	reopen := true
	h.d.Dispatch(flux.UpdateMessage{ID: user.ID, Patch: model.MessagePatch{IsStreaming: &reopen}})
	assert.False(t, h.store.MessageByID(user.ID).IsStreaming, "only placeholders stream")
	assert.Nil(t, h.store.StreamingMessage())
}

func TestStore_SupersededStreamStaysSealed(t *testing.T) {
	h := newHarness(t)
	first := h.addPlaceholder()
	h.addPlaceholder()

	h.d.Dispatch(flux.UpdateMessage{ID: first.ID, Patch: model.ContentPatch("late")})
	assert.Equal(t, "", h.store.MessageByID(first.ID).Content)
}

func TestStore_UpdateReplacesMessageValue(t *testing.T) {
	h := newHarness(t)
	p := h.addPlaceholder()
	before := h.store.MessageByID(p.ID)

	h.d.Dispatch(flux.UpdateMessage{ID: p.ID, Patch: model.ContentPatch("a")})
	after := h.store.MessageByID(p.ID)

	assert.Equal(t, "", before.Content, "old value is never mutated")
	assert.Equal(t, before.Revision+1, after.Revision)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestStore_LoadHistoryReplacesAtomically(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(flux.AddMessage{Message: model.NewUserMessage("old")})
	base := h.notices

	u := model.NewUserMessage("hi")
	a := model.NewAssistantMessage("yo")
	stale := a.Clone()
	stale.IsStreaming = true
	h.d.Dispatch(flux.LoadHistory{Messages: []*model.Message{u, a, stale, nil}})

	assert.Equal(t, base+1, h.notices)
	msgs := h.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "yo", msgs[1].Content)
	assert.Equal(t, 0, streamingCount(msgs))
}

func TestStore_UnsubscribeAndClose(t *testing.T) {
	h := newHarness(t)
	count := 0
	unsubscribe := h.store.Subscribe(func() { count++ })

	h.d.Dispatch(flux.SetTyping{Typing: true})
	unsubscribe()
	h.d.Dispatch(flux.SetTyping{Typing: false})
	assert.Equal(t, 1, count)

	h.store.Close()
	h.d.Dispatch(flux.SetError{Message: "ignored"})
	assert.Empty(t, h.store.Error())
}

func TestStore_ListenerDispatchPanics(t *testing.T) {
	h := newHarness(t)
	h.store.Subscribe(func() {
		h.d.Dispatch(flux.ResetError{})
	})

	assert.PanicsWithValue(t, flux.ErrReentrantDispatch, func() {
		h.d.Dispatch(flux.SetTyping{Typing: true})
	})
}
