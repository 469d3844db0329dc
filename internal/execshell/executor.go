package execshell

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// CommandName identifies an executable.
type CommandName string

// Executables the release drives.
const (
	CommandGit   CommandName = "git"
	CommandMaven CommandName = "mvn"
	CommandCurl  CommandName = "curl"
)

// CommandDetails describes command invocation properties.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// Timeout bounds the command run time; zero means no limit beyond the caller's context.
	Timeout time.Duration
	// OutputWriter receives stdout and stderr as they are produced, in addition to the captured result.
	OutputWriter io.Writer
}

// ShellCommand is an executable plus its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures observable command results.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ShellExecutor runs commands through a CommandRunner and logs each command's lifecycle.
type ShellExecutor struct {
	commandRunner CommandRunner
	lifecycle     lifecycleLogger
}

// NewShellExecutor builds an executor. humanReadableLogging selects sentence-style log lines over
// structured fields.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	var lifecycle lifecycleLogger = structuredLifecycleLogger{logger: logger}
	if humanReadableLogging {
		lifecycle = sentenceLifecycleLogger{logger: logger}
	}
	return &ShellExecutor{commandRunner: commandRunner, lifecycle: lifecycle}, nil
}

// Execute runs command. A non-zero exit returns the captured result together with a CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if command.Name == "" {
		return ExecutionResult{}, ErrCommandNameMissing
	}

	executor.lifecycle.started(command)
	result, runnerError := executor.commandRunner.Run(executionContext, command)

	var toolError ToolNotFoundError
	switch {
	case errors.As(runnerError, &toolError):
		executor.lifecycle.toolMissing(command)
		return ExecutionResult{}, toolError
	case runnerError != nil:
		executor.lifecycle.crashed(command, runnerError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runnerError}
	case result.ExitCode != 0:
		executor.lifecycle.failed(command, result)
		return result, CommandFailedError{Command: command, Result: result}
	}

	executor.lifecycle.succeeded(command, result)
	return result, nil
}

// ExecuteGit runs git.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteMaven runs mvn.
func (executor *ShellExecutor) ExecuteMaven(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandMaven, Details: details})
}

// ExecuteCurl runs curl.
func (executor *ShellExecutor) ExecuteCurl(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandCurl, Details: details})
}

// ExecuteScript runs a project script by path.
func (executor *ShellExecutor) ExecuteScript(executionContext context.Context, scriptPath string, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandName(scriptPath), Details: details})
}
