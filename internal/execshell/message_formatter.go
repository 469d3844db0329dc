package execshell

import (
	"fmt"
	"strings"
)

const (
	startedMessageTemplateConstant          = "Running %s"
	succeededMessageTemplateConstant        = "Completed %s"
	failedMessageTemplateConstant           = "%s failed with exit code %d: %s"
	failedWithoutDetailTemplateConstant     = "%s failed with exit code %d"
	executionFailureMessageTemplateConstant = "%s failed: %v"
	workingDirectorySuffixTemplateConstant  = "%s (in %s)"
)

// CommandMessageFormatter renders human-readable command lifecycle messages.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(startedMessageTemplateConstant, formatter.describe(command))
}

// BuildSuccessMessage describes a command that exited cleanly.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(succeededMessageTemplateConstant, formatter.describe(command))
}

// BuildFailureMessage describes a command that exited with a non-zero code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	detail := firstLine(result.StandardError)
	if len(detail) == 0 {
		detail = firstLine(result.StandardOutput)
	}
	if len(detail) == 0 {
		return fmt.Sprintf(failedWithoutDetailTemplateConstant, formatter.describe(command), result.ExitCode)
	}
	return fmt.Sprintf(failedMessageTemplateConstant, formatter.describe(command), result.ExitCode, detail)
}

// BuildExecutionFailureMessage describes a command the runner could not execute.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, cause error) string {
	return fmt.Sprintf(executionFailureMessageTemplateConstant, formatter.describe(command), cause)
}

func (formatter CommandMessageFormatter) describe(command ShellCommand) string {
	parts := append([]string{string(command.Name)}, command.Details.Arguments...)
	description := strings.Join(parts, " ")
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return description
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, description, workingDirectory)
}

func firstLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return ""
	}
	line, _, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(line)
}
