// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// ConversationState is the full client-side state of one conversation.
// It is owned by a single writer; nothing here is synchronized.
type ConversationState struct {
	// Messages in display order, oldest first.
	Messages []*Message

	// Typing is true while awaiting the first byte of a reply or while a
	// blocking request is in flight.
	Typing bool

	// Error is the last user-visible error, empty when there is none.
	Error string

	// SessionID is the backend conversation handle, empty until assigned.
	SessionID string

	Persona PersonaConfig
}

// NewConversationState returns an empty state with no persona.
func NewConversationState() ConversationState {
	return ConversationState{Persona: NoPersona()}
}

// IndexOf returns the index of the message with the given id, or -1.
func (s *ConversationState) IndexOf(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// MessageByID returns the message with the given id, or nil.
func (s *ConversationState) MessageByID(id string) *Message {
	if i := s.IndexOf(id); i >= 0 {
		return s.Messages[i]
	}
	return nil
}

// StreamingIndex returns the index of the in-flight assistant message, or -1.
func (s *ConversationState) StreamingIndex() int {
	for i, m := range s.Messages {
		if m.IsStreaming {
			return i
		}
	}
	return -1
}

// LastMessage returns the most recent message, or nil.
func (s *ConversationState) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// CountByRole returns the number of messages with the given role.
func (s *ConversationState) CountByRole(role Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// ClearMessages removes all messages without touching the rest of the state.
func (s *ConversationState) ClearMessages() {
	s.Messages = nil
}
