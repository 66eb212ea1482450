// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the current conversation to a file.
//
// # Supported Formats
//
//   - Markdown: human-readable, with YAML frontmatter
//   - JSON: machine-readable, one object per message
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", opts)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(transcript, exp, opts)
package export
