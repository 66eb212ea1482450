// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/glmchat-tui/internal/model"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command is a slash command.
type Command struct {
	// Name is the primary name, e.g. "/help"
	Name        string
	Aliases     []string
	Description string
	// Usage shows argument syntax, e.g. "/delete <n>"
	Usage string
	Args  []ArgDef
	// Rest passes everything after the name as a single argument.
	Rest bool

	Handler func(ctx *Context, args []string) tea.Cmd

	Hidden   bool
	Category string
}

// ArgDef describes one argument.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string
	// Values for ArgTypeEnum
	Values []string
}

// ArgType selects validation and completion for an argument.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeEnum                   // One of Values
	ArgTypeInt                    // Positive integer
	ArgTypePersona                // Preset id, "none", or custom text
)

// Context is the application state a handler may read.
type Context struct {
	SessionID    string
	MessageCount int
	Stream       bool
	Streaming    bool
	Persona      model.PersonaConfig
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds the known commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds cmd, replacing any command with the same name.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get finds a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns the commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Names returns every name and alias, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands)+len(r.aliases))
	for name := range r.commands {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// ByCategory groups visible commands by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Category:    "General",
		Handler:     HandleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit glmchat",
		Category:    "General",
		Handler:     HandleQuit,
	})

	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "Start a new conversation with a new session",
		Category:    "Conversation",
		Handler:     HandleNew,
	})
	r.Register(&Command{
		Name:        "/clear",
		Description: "Clear the conversation on the server and locally",
		Category:    "Conversation",
		Handler:     HandleClear,
	})
	r.Register(&Command{
		Name:        "/history",
		Description: "Reload the conversation from the server",
		Category:    "Conversation",
		Handler:     HandleHistory,
	})
	r.Register(&Command{
		Name:        "/delete",
		Aliases:     []string{"/del"},
		Description: "Remove a message locally (1 is the oldest)",
		Usage:       "/delete <n>",
		Args: []ArgDef{
			{Name: "n", Required: true, Type: ArgTypeInt, Description: "message number"},
		},
		Category: "Conversation",
		Handler:  HandleDelete,
	})
	r.Register(&Command{
		Name:        "/stop",
		Description: "Stop the reply being streamed",
		Category:    "Conversation",
		Handler:     HandleStop,
	})
	r.Register(&Command{
		Name:        "/export",
		Description: "Write the conversation to a file",
		Usage:       "/export [markdown|json]",
		Args: []ArgDef{
			{Name: "format", Type: ArgTypeEnum, Values: []string{"markdown", "md", "json"}, Description: "file format"},
		},
		Category: "Conversation",
		Handler:  HandleExport,
	})

	r.Register(&Command{
		Name:        "/persona",
		Aliases:     []string{"/p"},
		Description: "Set the persona: a preset, custom text, or none",
		Usage:       "/persona [preset|none|custom text]",
		Args: []ArgDef{
			{Name: "persona", Type: ArgTypePersona, Description: "preset id, none, or a system prompt"},
		},
		Rest:     true,
		Category: "Persona",
		Handler:  HandlePersona,
	})
	r.Register(&Command{
		Name:        "/personas",
		Description: "List the preset personas",
		Category:    "Persona",
		Handler:     HandlePersonas,
	})

	r.Register(&Command{
		Name:        "/stream",
		Description: "Show or toggle streaming replies",
		Usage:       "/stream [on|off]",
		Args: []ArgDef{
			{Name: "mode", Type: ArgTypeEnum, Values: []string{"on", "off"}, Description: "on or off"},
		},
		Category: "Settings",
		Handler:  HandleStream,
	})
	r.Register(&Command{
		Name:        "/session",
		Description: "Show the session id",
		Category:    "Settings",
		Handler:     HandleSession,
	})
}
