// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnknownCommand is returned for a slash command that is not registered.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult is parsed user input.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is nil when the name is unknown
	Command     *Command
	CommandName string
	Args        []string

	RawInput string
	// RawArgs is everything after the command name, trimmed
	RawArgs string

	// Error is set for an unknown command or invalid arguments
	Error error
}

// =============================================================================
// PARSER
// =============================================================================

// Parser parses slash commands against a registry.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse parses input. Input without a leading slash is a chat message and
// yields IsCommand=false.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	result := ParseResult{RawInput: input}

	if !IsCommand(input) {
		return result
	}
	result.IsCommand = true

	name, rest := input, ""
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		name, rest = input[:i], input[i:]
	}
	result.CommandName = strings.ToLower(name)
	result.RawArgs = strings.TrimSpace(rest)

	result.Command = p.registry.Get(result.CommandName)
	if result.Command == nil {
		result.Error = fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, name)
		return result
	}

	if result.Command.Rest {
		if result.RawArgs != "" {
			result.Args = []string{result.RawArgs}
		}
	} else {
		result.Args = splitCommandLine(result.RawArgs)
	}
	if err := ValidateArgs(result.Command, result.Args); err != nil {
		result.Error = err
	}
	return result
}

// ParseArgs splits a raw argument string, honoring quotes.
func ParseArgs(input string) []string {
	return splitCommandLine(input)
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// splitCommandLine splits on unquoted whitespace. Single and double quotes
// group words and are removed; inside quotes a backslash escapes a quote or
// another backslash.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, inToken bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			inToken = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			inToken = true
		case r == '\\' && (inSingle || inDouble) && i+1 < len(runes) &&
			(runes[i+1] == '"' || runes[i+1] == '\'' || runes[i+1] == '\\'):
			current.WriteRune(runes[i+1])
			i++
		case unicode.IsSpace(r) && !inSingle && !inDouble:
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsCommand reports whether input is a slash command. A lone "/" or a path
// such as "/usr/bin" followed by more slashes is treated as a message.
func IsCommand(input string) bool {
	input = strings.TrimSpace(input)
	if len(input) < 2 || input[0] != '/' {
		return false
	}
	name := input
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		name = input[:i]
	}
	return !strings.Contains(name[1:], "/")
}

// ValidateArgs checks args against cmd's definitions.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "required argument missing",
					Expected: usageOrDescription(cmd, def),
				}
			}
			continue
		}

		switch def.Type {
		case ArgTypeEnum:
			if !containsFold(def.Values, args[i]) {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(def.Values, ", "),
				}
			}
		case ArgTypeInt:
			if n, err := strconv.Atoi(args[i]); err != nil || n < 1 {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "invalid number",
					Got:      args[i],
					Expected: "a positive integer",
				}
			}
		}
	}
	return nil
}

func usageOrDescription(cmd *Command, def ArgDef) string {
	if cmd.Usage != "" {
		return cmd.Usage
	}
	return def.Description
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError is an invalid or missing argument.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += " - expected: " + e.Expected
	}
	return msg
}
