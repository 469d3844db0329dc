package errors

import (
	stdErrors "errors"
	"fmt"
)

// Operation identifies the release phase producing a contextual error.
type Operation string

const (
	// OperationSetup denotes setup and environment verification, before any state is persisted.
	OperationSetup Operation = "release.setup"
	// OperationStep denotes a resumable release step.
	OperationStep Operation = "release.step"
	// OperationData denotes malformed repository, descriptor or API data.
	OperationData Operation = "release.data"
	// OperationResume denotes reading or answering the resume prompt.
	OperationResume Operation = "release.resume"
)

// Sentinel is a stable, machine-readable failure code. Wrapped errors match it with errors.Is.
type Sentinel string

func (sentinel Sentinel) Error() string {
	return string(sentinel)
}

// Code returns the sentinel as a string.
func (sentinel Sentinel) Code() string {
	return string(sentinel)
}

// OperationError ties a failure to the release phase and subject (step name, setup check or file) it came
// from. It renders as "phase[subject]: detail", leaving out the brackets when there is no subject.
type OperationError struct {
	operation Operation
	subject   string
	err       error
	message   string
}

func (operationError OperationError) Error() string {
	location := string(operationError.operation)
	if operationError.subject != "" {
		location += "[" + operationError.subject + "]"
	}
	if operationError.message != "" {
		return location + ": " + operationError.message
	}
	return fmt.Sprintf("%s: %v", location, operationError.err)
}

func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the release phase.
func (operationError OperationError) Operation() Operation {
	return operationError.operation
}

// Subject returns the step name, setup check or file the failure concerns.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the wrapped sentinel code, or an empty string when there is none.
func (operationError OperationError) Code() string {
	var sentinel Sentinel
	if operationError.err == nil || !stdErrors.As(operationError.err, &sentinel) {
		return ""
	}
	return sentinel.Code()
}

// Message returns the operator-facing message given to WrapMessage.
func (operationError OperationError) Message() string {
	return operationError.message
}

// Wrap attributes detail to a phase and subject. With a sentinel the result matches both the sentinel and
// detail under errors.Is.
func Wrap(operation Operation, subject string, sentinel Sentinel, detail error) error {
	cause := detail
	switch {
	case sentinel == "":
	case detail == nil:
		cause = sentinel
	default:
		cause = fmt.Errorf("%w: %w", sentinel, detail)
	}
	return OperationError{operation: operation, subject: subject, err: cause}
}

// WrapMessage is Wrap with an operator-facing message that replaces the sentinel code in Error.
func WrapMessage(operation Operation, subject string, sentinel Sentinel, message string) error {
	if message == "" {
		return Wrap(operation, subject, sentinel, nil)
	}
	return OperationError{operation: operation, subject: subject, err: fmt.Errorf("%w: %s", sentinel, message), message: message}
}

var (
	// ErrConfigurationInvalid indicates missing or malformed release configuration.
	ErrConfigurationInvalid Sentinel = "configuration_invalid"
	// ErrArgumentsInvalid indicates an invalid combination of arguments and options.
	ErrArgumentsInvalid Sentinel = "arguments_invalid"
	// ErrNotProjectRoot indicates the command was not started from the project root directory.
	ErrNotProjectRoot Sentinel = "not_project_root"
	// ErrToolUnavailable indicates git or maven is not installed.
	ErrToolUnavailable Sentinel = "tool_unavailable"
	// ErrFetchFailed indicates fetching remotes failed.
	ErrFetchFailed Sentinel = "fetch_failed"
	// ErrRevisionNotFound indicates the base revision or release branch does not exist.
	ErrRevisionNotFound Sentinel = "revision_not_found"
	// ErrLocalChanges indicates the working tree has uncommitted changes.
	ErrLocalChanges Sentinel = "local_changes"
	// ErrVersionNotFound indicates the project version could not be resolved.
	ErrVersionNotFound Sentinel = "version_not_found"
	// ErrSerializationIDInvalid indicates a missing or malformed serialization version id.
	ErrSerializationIDInvalid Sentinel = "serialization_id_invalid"
	// ErrPullRequestLookupFailed indicates labeled pull requests could not be read.
	ErrPullRequestLookupFailed Sentinel = "pull_request_lookup_failed"
	// ErrProductionLookupFailed indicates the production version endpoint could not be read.
	ErrProductionLookupFailed Sentinel = "production_lookup_failed"
	// ErrStateUnavailable indicates the resume state could not be read, written or removed.
	ErrStateUnavailable Sentinel = "state_unavailable"
	// ErrResumeDeclined indicates the operator chose not to resume.
	ErrResumeDeclined Sentinel = "resume_declined"
	// ErrPromptUnavailable indicates resume input was required but no terminal or answer was provided.
	ErrPromptUnavailable Sentinel = "prompt_unavailable"
	// ErrStepFailed indicates a release step action failed.
	ErrStepFailed Sentinel = "step_failed"
)
