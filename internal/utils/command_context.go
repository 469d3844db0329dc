package utils

import (
	"context"
	"strings"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	executionFlagsContextKeyConstant        = commandContextKey("executionFlags")
	logLevelContextKeyConstant              = commandContextKey("logLevel")
)

type commandContextKey string

// ExecutionFlags captures the run modifiers given on the command line. The *Set fields record whether the
// operator passed the flag explicitly.
type ExecutionFlags struct {
	DryRun    bool
	DryRunSet bool
	Debug     bool
	DebugSet  bool
	Resume    string
	ResumeSet bool
}

// CommandContextAccessor stores the values resolved while initializing a command in its context, so the
// release command reads them from one place.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath records the configuration file the run was loaded from. A blank path, meaning
// embedded defaults only, leaves the context unchanged.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return withNonBlankCommandValue(parentContext, configurationFilePathContextKeyConstant, strings.TrimSpace(configurationFilePath))
}

// WithExecutionFlags records the execution flags.
func (accessor CommandContextAccessor) WithExecutionFlags(parentContext context.Context, flags ExecutionFlags) context.Context {
	return withCommandValue(parentContext, executionFlagsContextKeyConstant, flags)
}

// WithLogLevel records the effective log level, lower-cased. A blank level leaves the context unchanged.
func (accessor CommandContextAccessor) WithLogLevel(parentContext context.Context, logLevel string) context.Context {
	return withNonBlankCommandValue(parentContext, logLevelContextKeyConstant, strings.ToLower(strings.TrimSpace(logLevel)))
}

// ConfigurationFilePath returns the recorded configuration file path.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return commandValue[string](executionContext, configurationFilePathContextKeyConstant)
}

// ExecutionFlags returns the recorded execution flags.
func (accessor CommandContextAccessor) ExecutionFlags(executionContext context.Context) (ExecutionFlags, bool) {
	return commandValue[ExecutionFlags](executionContext, executionFlagsContextKeyConstant)
}

// LogLevel returns the recorded log level.
func (accessor CommandContextAccessor) LogLevel(executionContext context.Context) (string, bool) {
	return commandValue[string](executionContext, logLevelContextKeyConstant)
}

// DebugEnabled reports whether the recorded log level is debug.
func (accessor CommandContextAccessor) DebugEnabled(executionContext context.Context) bool {
	logLevel, available := accessor.LogLevel(executionContext)
	return available && logLevel == string(LogLevelDebug)
}

func withCommandValue(parentContext context.Context, key commandContextKey, value any) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func withNonBlankCommandValue(parentContext context.Context, key commandContextKey, value string) context.Context {
	if value == "" {
		if parentContext == nil {
			return context.Background()
		}
		return parentContext
	}
	return withCommandValue(parentContext, key, value)
}

func commandValue[T any](executionContext context.Context, key commandContextKey) (T, bool) {
	var zero T
	if executionContext == nil {
		return zero, false
	}
	value, available := executionContext.Value(key).(T)
	if !available {
		return zero, false
	}
	return value, true
}
