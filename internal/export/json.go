// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"time"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	SessionID  string        `json:"session_id"`
	Persona    string        `json:"persona,omitempty"`
	ExportedAt *time.Time    `json:"exported_at,omitempty"`
	Messages   []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Content     string     `json:"content"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`
}

// Export converts a transcript to indented JSON. Metadata and timestamps
// follow the exporter options.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, errors.New("transcript is nil")
	}
	msgs := exportable(t.Messages)
	if len(msgs) == 0 {
		return nil, ErrEmptyConversation
	}

	out := jsonTranscript{
		SessionID: t.SessionID,
		Messages:  make([]jsonMessage, 0, len(msgs)),
	}
	if e.options.IncludeMetadata {
		out.Persona = t.Persona.Name()
		if !t.ExportedAt.IsZero() {
			at := t.ExportedAt
			out.ExportedAt = &at
		}
	}
	for _, m := range msgs {
		jm := jsonMessage{
			ID:          m.ID,
			Role:        string(m.Role),
			Content:     m.Content,
			Interrupted: m.IsStreaming,
		}
		if e.options.IncludeTimestamps {
			ts := m.Timestamp
			jm.Timestamp = &ts
		}
		out.Messages = append(out.Messages, jm)
	}
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
