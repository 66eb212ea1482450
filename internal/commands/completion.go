// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"

	"github.com/jeranaias/glmchat-tui/internal/model"
)

// Completer suggests completions for partial input.
type Completer struct {
	registry *Registry
}

// NewCompleter creates a completer.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns full-line candidates for input. Only the command name and
// the first argument are completed.
func (c *Completer) Complete(input string) []string {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	name, rest, hasArgs := strings.Cut(input, " ")
	if !hasArgs {
		return c.completeName(strings.ToLower(name))
	}

	cmd := c.registry.Get(strings.ToLower(name))
	if cmd == nil || len(cmd.Args) == 0 || strings.Contains(strings.TrimLeft(rest, " "), " ") {
		return nil
	}
	prefix := strings.ToLower(strings.TrimLeft(rest, " "))

	var values []string
	switch cmd.Args[0].Type {
	case ArgTypeEnum:
		values = cmd.Args[0].Values
	case ArgTypePersona:
		values = append(model.PresetIDs(), "none")
	default:
		return nil
	}

	var out []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, name+" "+v)
		}
	}
	return out
}

func (c *Completer) completeName(prefix string) []string {
	var out []string
	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, prefix) {
			out = append(out, cmd.Name)
		}
	}
	sort.Strings(out)
	return out
}

// CommonPrefix returns the longest prefix shared by all candidates.
func CommonPrefix(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	prefix := candidates[0]
	for _, c := range candidates[1:] {
		for !strings.HasPrefix(c, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
