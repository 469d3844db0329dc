package execshell

import (
	"errors"
	"fmt"
	"strings"
)

const (
	commandFailureErrorTemplateConstant   = "%s command exited with code %d"
	commandExecutionErrorTemplateConstant = "%s command execution failed: %v"
	toolNotFoundErrorTemplateConstant     = "%s executable not found; install it or add it to PATH"
	failureDetailLineLimitConstant        = 3
	failureDetailSeparatorConstant        = " | "
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New("shell executor logger not configured")
	// ErrCommandRunnerNotConfigured indicates the command runner dependency was missing.
	ErrCommandRunnerNotConfigured = errors.New("shell executor command runner not configured")
	// ErrCommandNameMissing indicates the command name was not provided.
	ErrCommandNameMissing = errors.New("shell command name not provided")
)

// CommandFailedError reports a command that ran and exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error names the command, its arguments and the first lines of its diagnostics.
func (commandError CommandFailedError) Error() string {
	message := fmt.Sprintf(commandFailureErrorTemplateConstant, commandError.Command.Name, commandError.Result.ExitCode)
	if arguments := commandError.Command.Details.Arguments; len(arguments) > 0 {
		message += " (" + strings.Join(arguments, " ") + ")"
	}
	if detail := summarizeDiagnostics(commandError.Result); detail != "" {
		message += ": " + detail
	}
	return message
}

// CommandExecutionError wraps a runner failure that prevented the command from completing.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.Name, executionError.Cause)
}

func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ToolNotFoundError reports that the executable is not on PATH.
type ToolNotFoundError struct {
	Command ShellCommand
	Cause   error
}

func (toolError ToolNotFoundError) Error() string {
	return fmt.Sprintf(toolNotFoundErrorTemplateConstant, toolError.Command.Name)
}

func (toolError ToolNotFoundError) Unwrap() error {
	return toolError.Cause
}

// summarizeDiagnostics joins the leading non-blank lines of stderr, or of stdout when stderr is empty.
func summarizeDiagnostics(result ExecutionResult) string {
	diagnostics := strings.TrimSpace(result.StandardError)
	if diagnostics == "" {
		diagnostics = strings.TrimSpace(result.StandardOutput)
	}
	if diagnostics == "" {
		return ""
	}

	lines := strings.Split(diagnostics, "\n")
	if len(lines) > failureDetailLineLimitConstant {
		lines = lines[:failureDetailLineLimitConstant]
	}
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, failureDetailSeparatorConstant)
}
