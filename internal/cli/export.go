// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/glmchat-tui/internal/export"
)

// ExportOptions configures the export command.
type ExportOptions struct {
	Format string
	// Dir receives the file. Ignored when Stdout is set.
	Dir    string
	Stdout bool
}

// RunExport loads the persisted session's conversation and writes it to a
// file, or to out when opts.Stdout is set.
func RunExport(rt *Runtime, opts ExportOptions, out io.Writer) error {
	exp, err := export.ForFormat(opts.Format, nil)
	if err != nil {
		return &UsageError{Message: err.Error(), Usage: "glmchat export --format markdown|json"}
	}
	if err := rt.Wait(rt.Creators.Init); err != nil {
		return NewCommandError("export", "load history", err)
	}
	snap, err := rt.Snapshot()
	if err != nil {
		return err
	}

	if opts.Stdout {
		data, err := exp.Export(transcriptOf(snap))
		if err != nil {
			return NewCommandError("export", "export", err)
		}
		_, err = out.Write(data)
		return err
	}

	path, err := exportSnapshot(snap, opts.Format, opts.Dir)
	if err != nil {
		return NewCommandError("export", "export", err)
	}
	fmt.Fprintln(out, SuccessStyle.Render("exported to "+path))
	return nil
}

func transcriptOf(snap Snapshot) *export.Transcript {
	return &export.Transcript{
		SessionID:  snap.SessionID,
		Persona:    snap.Persona,
		Messages:   snap.Messages,
		ExportedAt: time.Now(),
	}
}

// exportSnapshot writes snap into dir and returns the file path.
func exportSnapshot(snap Snapshot, format, dir string) (string, error) {
	opts := export.DefaultOptions()
	if dir != "" {
		opts.OutputDir = dir
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	return export.ToFile(transcriptOf(snap), exp, opts)
}
