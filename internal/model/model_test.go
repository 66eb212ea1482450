// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_ApplyBumpsRevision(t *testing.T) {
	msg := NewStreamingPlaceholder()
	next := msg.Apply(ContentPatch("Hi"))

	if next == msg {
		t.Fatal("Apply should return a new message")
	}
	if next.Revision != msg.Revision+1 {
		t.Errorf("Revision = %d, want %d", next.Revision, msg.Revision+1)
	}
	if msg.Content != "" {
		t.Errorf("original content mutated: %q", msg.Content)
	}
	if next.Content != "Hi" || !next.IsStreaming {
		t.Errorf("unexpected merge result: %+v", next)
	}
}

func TestMessage_SealPatch(t *testing.T) {
	msg := NewStreamingPlaceholder()
	sealed := msg.Apply(SealPatch("done"))

	if sealed.IsStreaming {
		t.Error("sealed message still streaming")
	}
	if sealed.Content != "done" {
		t.Errorf("Content = %q, want done", sealed.Content)
	}
	if sealed.ID != msg.ID || !sealed.Timestamp.Equal(msg.Timestamp) {
		t.Error("identity fields must survive a patch")
	}
}

func TestMessage_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewUserMessage("x").ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{"short", "hello", 10, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "你好世界你好世界", 5, "你好..."},
		{"trimmed", "  hi  ", 10, "hi"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewUserMessage(tc.content)
			if got := msg.Preview(tc.max); got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.max, got, tc.want)
			}
		})
	}
}

func TestRole_IsConversational(t *testing.T) {
	if !RoleUser.IsConversational() || !RoleAssistant.IsConversational() {
		t.Error("user and assistant must be conversational")
	}
	if RoleSystem.IsConversational() || Role("tool").IsConversational() {
		t.Error("system and unknown roles must not be conversational")
	}
}

// =============================================================================
// PERSONA TESTS
// =============================================================================

func TestReconstructPersona(t *testing.T) {
	tests := []struct {
		name       string
		id, desc   string
		wantMode   PersonaMode
		wantPreset string
		wantPrompt string
	}{
		{"preset", "doctor", "ignored", PersonaPreset, "doctor", ""},
		{"preset case", "Teacher", "", PersonaPreset, "teacher", ""},
		{"custom", "custom", "You are a pirate.", PersonaCustom, "", "You are a pirate."},
		{"unknown id", "bard", "Sing.", PersonaCustom, "", "Sing."},
		{"empty", "", "", PersonaNone, "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := ReconstructPersona(tc.id, tc.desc)
			if cfg.Mode != tc.wantMode {
				t.Fatalf("Mode = %q, want %q", cfg.Mode, tc.wantMode)
			}
			if cfg.PresetID != tc.wantPreset {
				t.Errorf("PresetID = %q, want %q", cfg.PresetID, tc.wantPreset)
			}
			if tc.wantPrompt != "" && cfg.Prompt != tc.wantPrompt {
				t.Errorf("Prompt = %q, want %q", cfg.Prompt, tc.wantPrompt)
			}
		})
	}
}

func TestPersonaConfig_Character(t *testing.T) {
	doctor, _ := FindPreset("doctor")
	id, desc := PresetPersona(doctor).Character()
	if id != "doctor" || desc != doctor.SystemPrompt {
		t.Errorf("preset Character() = %q, %q", id, desc)
	}

	id, desc = CustomPersona("  be brief  ").Character()
	if id != CustomCharacterID || desc != "be brief" {
		t.Errorf("custom Character() = %q, %q", id, desc)
	}

	id, desc = NoPersona().Character()
	if id != "" || desc != "" {
		t.Errorf("none Character() = %q, %q", id, desc)
	}
}

func TestPresets_Catalog(t *testing.T) {
	want := []string{"teacher", "doctor", "programmer", "writer", "translator", "consultant"}
	got := PresetIDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("PresetIDs() = %v, want %v", got, want)
	}
	for _, p := range Presets {
		if p.Name == "" || p.SystemPrompt == "" || p.Icon == "" {
			t.Errorf("preset %s has empty fields", p.ID)
		}
	}
}

// =============================================================================
// CONVERSATION STATE TESTS
// =============================================================================

func TestConversationState_Lookups(t *testing.T) {
	s := NewConversationState()
	u := NewUserMessage("hi")
	a := NewStreamingPlaceholder()
	s.Messages = append(s.Messages, u, a)

	if s.IndexOf(a.ID) != 1 {
		t.Errorf("IndexOf = %d, want 1", s.IndexOf(a.ID))
	}
	if s.IndexOf("missing") != -1 {
		t.Error("IndexOf(missing) should be -1")
	}
	if s.StreamingIndex() != 1 {
		t.Errorf("StreamingIndex = %d, want 1", s.StreamingIndex())
	}
	if s.MessageByID(u.ID) != u {
		t.Error("MessageByID returned wrong message")
	}
	if s.CountByRole(RoleUser) != 1 {
		t.Error("CountByRole(user) should be 1")
	}

	s.ClearMessages()
	if len(s.Messages) != 0 || s.LastMessage() != nil {
		t.Error("ClearMessages left messages behind")
	}
	if !s.Persona.IsNone() {
		t.Error("ClearMessages must not touch persona")
	}
}
