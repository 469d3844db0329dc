package maven

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opentripplanner/custom-release/internal/execshell"
)

const (
	versionFlagConstant                     = "--version"
	versionsSetGoalConstant                 = "versions:set"
	newVersionPropertyTemplateConstant      = "-DnewVersion=%s"
	skipBackupPomsPropertyConstant          = "-DgenerateBackupPoms=false"
	cleanPhaseConstant                      = "clean"
	skipPrettierProfileConstant             = "-PprettierSkip"
	testPhaseConstant                       = "test"
	versionFieldNameConstant                = "version"
	requiredValueMessageConstant            = "value required"
	executorNotConfiguredMessageConstant    = "maven executor not configured"
	invalidInputErrorTemplateConstant       = "%s: %s"
	operationErrorWithCauseTemplateConstant = "maven %s failed: %s"
	versionOperationNameConstant            = OperationName("Version")
	setVersionOperationNameConstant         = OperationName("SetVersion")
	testOperationNameConstant               = OperationName("Test")
)

// OperationName identifies a Maven workflow.
type OperationName string

// CommandExecutor is the minimal interface required from execshell.ShellExecutor.
type CommandExecutor interface {
	ExecuteMaven(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client drives the Maven build of the project rooted at its working directory.
type Client struct {
	executor         CommandExecutor
	workingDirectory string
	testOutput       io.Writer
}

// ErrExecutorNotConfigured indicates the client was constructed without an executor.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps Maven execution failures.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// NewClient constructs a Maven client. testOutput receives the test phase output as it runs and may be nil.
func NewClient(executor CommandExecutor, workingDirectory string, testOutput io.Writer) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor, workingDirectory: strings.TrimSpace(workingDirectory), testOutput: testOutput}, nil
}

// Version returns the first line reported by mvn --version.
func (client *Client) Version(executionContext context.Context) (string, error) {
	executionResult, executionError := client.execute(executionContext, versionOperationNameConstant, nil, versionFlagConstant)
	if executionError != nil {
		return "", executionError
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(executionResult.StandardOutput), "\n")
	return strings.TrimSpace(firstLine), nil
}

// SetVersion rewrites the project version in every module descriptor.
func (client *Client) SetVersion(executionContext context.Context, version string) error {
	trimmedVersion := strings.TrimSpace(version)
	if len(trimmedVersion) == 0 {
		return InvalidInputError{FieldName: versionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := client.execute(executionContext, setVersionOperationNameConstant, nil,
		versionsSetGoalConstant, fmt.Sprintf(newVersionPropertyTemplateConstant, trimmedVersion), skipBackupPomsPropertyConstant)
	return executionError
}

// Test runs a clean build with the unit tests.
func (client *Client) Test(executionContext context.Context) error {
	_, executionError := client.execute(executionContext, testOperationNameConstant, client.testOutput,
		cleanPhaseConstant, skipPrettierProfileConstant, testPhaseConstant)
	return executionError
}

func (client *Client) execute(executionContext context.Context, operation OperationName, output io.Writer, arguments ...string) (execshell.ExecutionResult, error) {
	executionResult, executionError := client.executor.ExecuteMaven(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: client.workingDirectory,
		OutputWriter:     output,
	})
	if executionError != nil {
		return executionResult, OperationError{Operation: operation, Cause: executionError}
	}
	return executionResult, nil
}
