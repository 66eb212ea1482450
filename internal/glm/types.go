// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package glm

import "time"

// Envelope is the response wrapper used by every endpoint.
// Code 0 means success; Msg carries the reason otherwise.
type Envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data T      `json:"data"`
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// CharacterRequest is the body of the persona endpoint.
type CharacterRequest struct {
	SessionID            string `json:"sessionId"`
	CharacterID          string `json:"characterId"`
	CharacterDescription string `json:"characterDescription"`
}

// CharacterInfo is the persona reported alongside history.
type CharacterInfo struct {
	CharacterID          string `json:"characterId"`
	CharacterDescription string `json:"characterDescription"`
}

// HistoryItem is one stored turn. Timestamp is milliseconds since the epoch
// and may be null.
type HistoryItem struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp *int64 `json:"timestamp"`
}

// Time returns the item's timestamp, or fallback when it has none.
func (h HistoryItem) Time(fallback time.Time) time.Time {
	if h.Timestamp == nil || *h.Timestamp <= 0 {
		return fallback
	}
	return time.UnixMilli(*h.Timestamp)
}

// History is the payload of the history endpoint.
type History struct {
	SessionID string         `json:"sessionId"`
	History   []HistoryItem  `json:"history"`
	Character *CharacterInfo `json:"character,omitempty"`
}
