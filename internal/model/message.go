// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsConversational reports whether messages with this role belong in the
// visible conversation. System and unknown roles are not displayed.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// InterruptedMarker is the content given to a streamed reply that failed
// before any text arrived.
const InterruptedMarker = "[interrupted]"

// Message represents a single message in a conversation.
//
// Messages are treated as values by the store: every change produces a new
// Message with Revision incremented. Consumers detect changes by comparing
// Revision, never by pointer identity.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsStreaming is true only while an assistant reply is still receiving chunks.
	IsStreaming bool `json:"is_streaming,omitempty"`

	// Revision is bumped on every mutation.
	Revision uint64 `json:"revision"`
}

// MessagePatch is a partial update applied to a message.
// Nil fields are left unchanged.
type MessagePatch struct {
	Content     *string
	IsStreaming *bool
}

// ContentPatch returns a patch that only replaces content.
func ContentPatch(content string) MessagePatch {
	return MessagePatch{Content: &content}
}

// SealPatch returns a patch that sets the final content and ends streaming.
func SealPatch(content string) MessagePatch {
	streaming := false
	return MessagePatch{Content: &content, IsStreaming: &streaming}
}

// IsEmpty reports whether the patch changes nothing.
func (p MessagePatch) IsEmpty() bool {
	return p.Content == nil && p.IsStreaming == nil
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Revision:  1,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a finished assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewStreamingPlaceholder creates an empty assistant message that is still
// receiving chunks.
func NewStreamingPlaceholder() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsStreaming = true
	return msg
}

// NewID generates a message identifier. IDs are never reused.
func NewID() string {
	return "msg_" + uuid.NewString()
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Apply returns a copy of the message with the patch merged in and the
// revision bumped. The receiver is not modified.
func (m *Message) Apply(p MessagePatch) *Message {
	next := *m
	if p.Content != nil {
		next.Content = *p.Content
	}
	if p.IsStreaming != nil {
		next.IsStreaming = *p.IsStreaming
	}
	next.Revision = m.Revision + 1
	return &next
}

// Clone returns a shallow copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := strings.TrimSpace(m.Content)
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}
