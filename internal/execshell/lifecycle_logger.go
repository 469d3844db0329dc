package execshell

import "go.uber.org/zap"

const (
	commandStartMessageConstant       = "command execution starting"
	commandSuccessMessageConstant     = "command execution completed"
	commandFailureMessageConstant     = "command returned non-zero status"
	commandRunnerErrorMessageConstant = "command execution error"
	commandToolMissingMessageConstant = "command executable not found"
	commandOutputMessageConstant      = "command output"
	commandFieldConstant              = "command"
	argumentsFieldConstant            = "arguments"
	workingDirectoryFieldConstant     = "working_directory"
	exitCodeFieldConstant             = "exit_code"
	standardOutputFieldConstant       = "stdout"
	standardErrorFieldConstant        = "stderr"
	debugOutputLimitConstant          = 1600
	truncationMarkerConstant          = "..."
)

type lifecycleLogger interface {
	started(command ShellCommand)
	succeeded(command ShellCommand, result ExecutionResult)
	failed(command ShellCommand, result ExecutionResult)
	crashed(command ShellCommand, cause error)
	toolMissing(command ShellCommand)
}

// structuredLifecycleLogger emits fixed messages with the command in fields.
type structuredLifecycleLogger struct {
	logger *zap.Logger
}

func (lifecycle structuredLifecycleLogger) started(command ShellCommand) {
	lifecycle.logger.Info(commandStartMessageConstant,
		zap.String(commandFieldConstant, string(command.Name)),
		zap.Strings(argumentsFieldConstant, command.Details.Arguments),
		zap.String(workingDirectoryFieldConstant, command.Details.WorkingDirectory),
	)
}

func (lifecycle structuredLifecycleLogger) succeeded(command ShellCommand, result ExecutionResult) {
	lifecycle.logger.Info(commandSuccessMessageConstant, zap.String(commandFieldConstant, string(command.Name)), zap.Int(exitCodeFieldConstant, result.ExitCode))
	logCommandOutput(lifecycle.logger, command, result)
}

func (lifecycle structuredLifecycleLogger) failed(command ShellCommand, result ExecutionResult) {
	lifecycle.logger.Warn(commandFailureMessageConstant,
		zap.String(commandFieldConstant, string(command.Name)),
		zap.Int(exitCodeFieldConstant, result.ExitCode),
		zap.String(standardErrorFieldConstant, result.StandardError),
	)
}

func (lifecycle structuredLifecycleLogger) crashed(command ShellCommand, cause error) {
	lifecycle.logger.Error(commandRunnerErrorMessageConstant, zap.String(commandFieldConstant, string(command.Name)), zap.Error(cause))
}

func (lifecycle structuredLifecycleLogger) toolMissing(command ShellCommand) {
	lifecycle.logger.Error(commandToolMissingMessageConstant, zap.String(commandFieldConstant, string(command.Name)))
}

// sentenceLifecycleLogger emits one readable sentence per event for console output.
type sentenceLifecycleLogger struct {
	logger    *zap.Logger
	formatter CommandMessageFormatter
}

func (lifecycle sentenceLifecycleLogger) started(command ShellCommand) {
	lifecycle.logger.Info(lifecycle.formatter.BuildStartedMessage(command))
}

func (lifecycle sentenceLifecycleLogger) succeeded(command ShellCommand, result ExecutionResult) {
	lifecycle.logger.Info(lifecycle.formatter.BuildSuccessMessage(command))
	logCommandOutput(lifecycle.logger, command, result)
}

func (lifecycle sentenceLifecycleLogger) failed(command ShellCommand, result ExecutionResult) {
	lifecycle.logger.Warn(lifecycle.formatter.BuildFailureMessage(command, result))
}

func (lifecycle sentenceLifecycleLogger) crashed(command ShellCommand, cause error) {
	lifecycle.logger.Error(lifecycle.formatter.BuildExecutionFailureMessage(command, cause))
}

func (lifecycle sentenceLifecycleLogger) toolMissing(command ShellCommand) {
	lifecycle.logger.Error(commandToolMissingMessageConstant, zap.String(commandFieldConstant, string(command.Name)))
}

func logCommandOutput(logger *zap.Logger, command ShellCommand, result ExecutionResult) {
	if checked := logger.Check(zap.DebugLevel, commandOutputMessageConstant); checked != nil {
		checked.Write(zap.String(commandFieldConstant, string(command.Name)), zap.String(standardOutputFieldConstant, truncateOutput(result.StandardOutput)))
	}
}

func truncateOutput(output string) string {
	if len(output) <= debugOutputLimitConstant {
		return output
	}
	return output[:debugOutputLimitConstant-len(truncationMarkerConstant)] + truncationMarkerConstant
}
