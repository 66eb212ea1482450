// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	urfave "github.com/urfave/cli/v2"

	"github.com/jeranaias/glmchat-tui/internal/actions"
	"github.com/jeranaias/glmchat-tui/internal/commands"
	"github.com/jeranaias/glmchat-tui/internal/config"
	"github.com/jeranaias/glmchat-tui/internal/glm"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or input
	ExitUsageError = 2
	// ExitConfigError indicates an unreadable or invalid config file
	ExitConfigError = 3
	// ExitNetworkError indicates the backend failed or was unreachable
	ExitNetworkError = 5
	// ExitTimeoutError indicates a request timed out
	ExitTimeoutError = 8
	// ExitInterrupted follows the shell convention for SIGINT
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError wraps a failure with the command that hit it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err, or returns nil when err is nil.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// UsageError is a bad argument or missing input.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Message
	}
	return e.Message + " (usage: " + e.Usage + ")"
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps err onto an exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitCoder urfave.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}

	var usageErr *UsageError
	var cmdValidation *commands.ValidationError
	switch {
	case errors.As(err, &usageErr),
		errors.As(err, &cmdValidation),
		errors.Is(err, commands.ErrUnknownCommand),
		errors.Is(err, actions.ErrEmptyMessage),
		errors.Is(err, actions.ErrMessageTooLong),
		errors.Is(err, actions.ErrInvalidPersona):
		return ExitUsageError
	}

	var cfgErrs config.ValidationErrors
	var cfgErr config.ValidationError
	if errors.As(err, &cfgErrs) || errors.As(err, &cfgErr) {
		return ExitConfigError
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var httpErr *glm.HTTPError
	var apiErr *glm.APIError
	var streamErr *glm.StreamError
	var remoteErr *glm.RemoteStreamError
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return ExitTimeoutError
	case errors.As(err, &httpErr),
		errors.As(err, &apiErr),
		errors.As(err, &streamErr),
		errors.As(err, &remoteErr),
		errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ExitNetworkError
	}

	return ExitGeneralError
}

// DisplayError writes err in the shared format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}
