package execshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// OSCommandRunner runs commands as operating system processes.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs an OSCommandRunner.
func NewOSCommandRunner() OSCommandRunner {
	return OSCommandRunner{}
}

// Run executes the command, capturing stdout and stderr and reporting the exit code.
func (runner OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	if command.Details.Timeout > 0 {
		var cancel context.CancelFunc
		executionContext, cancel = context.WithTimeout(executionContext, command.Details.Timeout)
		defer cancel()
	}

	executablePath, lookupError := exec.LookPath(string(command.Name))
	if lookupError != nil {
		return ExecutionResult{}, ToolNotFoundError{Command: command, Cause: lookupError}
	}

	process := exec.CommandContext(executionContext, executablePath, command.Details.Arguments...)
	process.Dir = command.Details.WorkingDirectory
	if len(command.Details.EnvironmentVariables) > 0 {
		environment := os.Environ()
		for key, value := range command.Details.EnvironmentVariables {
			environment = append(environment, key+"="+value)
		}
		process.Env = environment
	}
	if len(command.Details.StandardInput) > 0 {
		process.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	if command.Details.OutputWriter != nil {
		process.Stdout = io.MultiWriter(&standardOutput, command.Details.OutputWriter)
		process.Stderr = io.MultiWriter(&standardError, command.Details.OutputWriter)
	} else {
		process.Stdout = &standardOutput
		process.Stderr = &standardError
	}

	runError := process.Run()
	result := ExecutionResult{
		StandardOutput: standardOutput.String(),
		StandardError:  standardError.String(),
	}
	if runError == nil {
		return result, nil
	}

	var exitError *exec.ExitError
	if errors.As(runError, &exitError) && executionContext.Err() == nil {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}
	if contextError := executionContext.Err(); contextError != nil {
		return result, contextError
	}
	return result, runError
}
