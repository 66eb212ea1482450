// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flux

import "github.com/jeranaias/glmchat-tui/internal/model"

// ActionType identifies an action in logs and metrics.
type ActionType string

const (
	TypeAddMessage    ActionType = "ADD_MESSAGE"
	TypeUpdateMessage ActionType = "UPDATE_MESSAGE"
	TypeDeleteMessage ActionType = "DELETE_MESSAGE"
	TypeClearMessages ActionType = "CLEAR_MESSAGES"
	TypeSetTyping     ActionType = "SET_TYPING"
	TypeSetError      ActionType = "SET_ERROR"
	TypeResetError    ActionType = "RESET_ERROR"
	TypeSetSessionID  ActionType = "SET_SESSION_ID"
	TypeLoadHistory   ActionType = "LOAD_HISTORY"
	TypeSetPersona    ActionType = "SET_PERSONA"
)

// Action is a state change request broadcast by the Dispatcher.
// The set of implementations below is closed.
type Action interface {
	Type() ActionType
}

// AddMessage appends a message to the conversation.
type AddMessage struct {
	Message *model.Message
}

// UpdateMessage merges a patch into an existing message.
type UpdateMessage struct {
	ID    string
	Patch model.MessagePatch
}

// DeleteMessage removes one message.
type DeleteMessage struct {
	ID string
}

// ClearMessages empties the message list.
type ClearMessages struct{}

// SetTyping sets the typing indicator.
type SetTyping struct {
	Typing bool
}

// SetError records a user-visible error. An empty message clears it.
type SetError struct {
	Message string
}

// ResetError clears the error.
type ResetError struct{}

// SetSessionID adopts a backend conversation handle.
type SetSessionID struct {
	SessionID string
}

// LoadHistory replaces the whole message list.
type LoadHistory struct {
	Messages []*model.Message
}

// SetPersona installs a persona configuration.
type SetPersona struct {
	Config model.PersonaConfig
}

func (AddMessage) Type() ActionType    { return TypeAddMessage }
func (UpdateMessage) Type() ActionType { return TypeUpdateMessage }
func (DeleteMessage) Type() ActionType { return TypeDeleteMessage }
func (ClearMessages) Type() ActionType { return TypeClearMessages }
func (SetTyping) Type() ActionType     { return TypeSetTyping }
func (SetError) Type() ActionType      { return TypeSetError }
func (ResetError) Type() ActionType    { return TypeResetError }
func (SetSessionID) Type() ActionType  { return TypeSetSessionID }
func (LoadHistory) Type() ActionType   { return TypeLoadHistory }
func (SetPersona) Type() ActionType    { return TypeSetPersona }
