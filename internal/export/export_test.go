// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glmchat-tui/internal/model"
)

func sampleTranscript() *Transcript {
	preset, _ := model.FindPreset("programmer")
	return &Transcript{
		SessionID: "session_1700000000000_abc123def",
		Persona:   model.PresetPersona(preset),
		Messages: []*model.Message{
			model.NewUserMessage("Why does my loop never end?\nIt is in main.go"),
			model.NewAssistantMessage("Check the exit condition:\n\n```go\nfor i := 0; i < n; i++ {}\n```"),
			model.NewStreamingPlaceholder(),
		},
		ExportedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "session: session_1700000000000_abc123def")
	assert.Contains(t, md, "persona: Programmer")
	assert.Contains(t, md, "messages: 2", "the empty placeholder is skipped")
	assert.Contains(t, md, "# Why does my loop never end?\n")
	assert.Contains(t, md, "### [You] <sub>")
	assert.Contains(t, md, "### [Programmer]")
	assert.Contains(t, md, "```go\nfor i := 0; i < n; i++ {}\n```")
	assert.Contains(t, md, "*Exported from glmchat on 2025-03-01 12:30:00*")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	out, err := NewMarkdownExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)
	assert.False(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "### [You]\n")
}

func TestMarkdownExporter_MarksPartialReply(t *testing.T) {
	tr := sampleTranscript()
	tr.Messages[2] = tr.Messages[2].Apply(model.ContentPatch("half a"))

	out, err := NewMarkdownExporter(nil).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(out), "half a\n\n<sub>(reply still streaming at export time)</sub>")
}

func TestExporters_RejectEmpty(t *testing.T) {
	empty := &Transcript{Messages: []*model.Message{model.NewStreamingPlaceholder()}}

	_, err := NewMarkdownExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyConversation)
	_, err = NewJSONExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyConversation)
	_, err = NewJSONExporter(nil).Export(nil)
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var got jsonTranscript
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "session_1700000000000_abc123def", got.SessionID)
	assert.Equal(t, "Programmer", got.Persona)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.NotNil(t, got.Messages[0].Timestamp)
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"", "markdown", "MD"} {
		exp, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, ".md", exp.FileExtension())
	}
	exp, err := ForFormat("json", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", exp.MimeType())

	_, err = ForFormat("html", nil)
	assert.Error(t, err)
}

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	opts := DefaultOptions()
	opts.OutputDir = dir

	path, err := ToFile(sampleTranscript(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "glmchat_session_1700000000000_abc123def_20250301_123000.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Why does my loop never end?")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename(`a/b:c d`))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("é", 80))), 50)
	assert.Equal(t, "x-y", sanitizeFilename("x\x01y"))
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: b"`, escapeYAML("a: b"))
	assert.Equal(t, `"line\nbreak"`, escapeYAML("line\nbreak"))
	assert.Equal(t, `"back\\slash"`, escapeYAML(`back\slash`))
}
