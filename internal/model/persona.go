// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// PERSONA MODE
// =============================================================================

// PersonaMode selects how the assistant is role-playing.
type PersonaMode string

const (
	PersonaNone   PersonaMode = "none"
	PersonaPreset PersonaMode = "preset"
	PersonaCustom PersonaMode = "custom"
)

// CustomCharacterID is the character id sent to the backend for a custom prompt.
const CustomCharacterID = "custom"

// =============================================================================
// PRESETS
// =============================================================================

// Preset is a built-in persona.
type Preset struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Icon         string
}

// Presets is the built-in persona catalog, in display order.
var Presets = []Preset{
	{
		ID:           "teacher",
		Name:         "Teacher",
		Description:  "Patient, good at explaining complex ideas",
		SystemPrompt: "You are an experienced teacher who explains complex concepts in simple, approachable terms. Answer questions patiently and offer relevant examples and exercises.",
		Icon:         "👨‍🏫",
	},
	{
		ID:           "doctor",
		Name:         "Doctor",
		Description:  "Professional medical guidance",
		SystemPrompt: "You are a professional doctor who gives accurate health advice and medical information. Answer with professional care, and remind the user that this does not replace a diagnosis.",
		Icon:         "👨‍⚕️",
	},
	{
		ID:           "programmer",
		Name:         "Programmer",
		Description:  "Technical expert for code problems",
		SystemPrompt: "You are an experienced programmer fluent in many languages and stacks. Provide clear, efficient code solutions and explain the relevant technical details.",
		Icon:         "💻",
	},
	{
		ID:           "writer",
		Name:         "Writer",
		Description:  "Literary, expressive writing",
		SystemPrompt: "You are a talented writer at home in every literary form. Write with vivid, graceful language.",
		Icon:         "✍️",
	},
	{
		ID:           "translator",
		Name:         "Translator",
		Description:  "Accurate multilingual translation",
		SystemPrompt: "You are a professional translator fluent in many languages. Provide accurate, idiomatic translations that respect context and cultural differences.",
		Icon:         "🌐",
	},
	{
		ID:           "consultant",
		Name:         "Consultant",
		Description:  "Business analysis and advice",
		SystemPrompt: "You are a senior business consultant skilled in analysis and strategic planning. Provide professional, in-depth business advice.",
		Icon:         "💼",
	},
}

// FindPreset returns the preset with the given id.
func FindPreset(id string) (Preset, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range Presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// PresetIDs returns the ids of all presets.
func PresetIDs() []string {
	ids := make([]string, len(Presets))
	for i, p := range Presets {
		ids[i] = p.ID
	}
	return ids
}

// =============================================================================
// PERSONA CONFIG
// =============================================================================

// PersonaConfig is the active role-play configuration.
type PersonaConfig struct {
	Mode     PersonaMode `json:"mode"`
	PresetID string      `json:"preset_id,omitempty"`
	Prompt   string      `json:"prompt,omitempty"`
}

// NoPersona returns the default configuration.
func NoPersona() PersonaConfig {
	return PersonaConfig{Mode: PersonaNone}
}

// PresetPersona returns a configuration for a built-in preset.
func PresetPersona(p Preset) PersonaConfig {
	return PersonaConfig{Mode: PersonaPreset, PresetID: p.ID, Prompt: p.SystemPrompt}
}

// CustomPersona returns a configuration for a free-form system prompt.
func CustomPersona(prompt string) PersonaConfig {
	return PersonaConfig{Mode: PersonaCustom, Prompt: strings.TrimSpace(prompt)}
}

// IsNone reports whether no persona is active.
func (c PersonaConfig) IsNone() bool {
	return c.Mode == "" || c.Mode == PersonaNone
}

// Character returns the character id and description the backend expects.
func (c PersonaConfig) Character() (id, description string) {
	switch c.Mode {
	case PersonaPreset:
		if p, ok := FindPreset(c.PresetID); ok {
			return p.ID, p.SystemPrompt
		}
		return c.PresetID, c.Prompt
	case PersonaCustom:
		return CustomCharacterID, c.Prompt
	default:
		return "", ""
	}
}

// Icon returns the icon shown next to assistant replies.
func (c PersonaConfig) Icon() string {
	switch c.Mode {
	case PersonaPreset:
		if p, ok := FindPreset(c.PresetID); ok {
			return p.Icon
		}
	case PersonaCustom:
		return "🎭"
	}
	return "🤖"
}

// Name returns the display name of the persona.
func (c PersonaConfig) Name() string {
	switch c.Mode {
	case PersonaPreset:
		if p, ok := FindPreset(c.PresetID); ok {
			return p.Name
		}
		return c.PresetID
	case PersonaCustom:
		return "Custom"
	}
	return "AI"
}

// ReconstructPersona maps a character reported by the backend back to a
// configuration. A known preset id yields that preset, any other non-empty
// character yields a custom persona, and an empty one yields no persona.
func ReconstructPersona(characterID, description string) PersonaConfig {
	if p, ok := FindPreset(characterID); ok {
		return PresetPersona(p)
	}
	if strings.TrimSpace(characterID) == "" && strings.TrimSpace(description) == "" {
		return NoPersona()
	}
	return CustomPersona(description)
}
