// Package prompt asks the operator how to treat the state left by an interrupted release.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
)

const (
	resumePromptTemplateConstant  = "The last release was interrupted at step %q.\nResume [y], exit [x] or discard the saved state and exit [d]? "
	invalidAnswerTemplateConstant = "unsupported resume answer %q, expected y, x or d"
	retryMessageConstant          = "Please answer y, x or d.\n"
	noTerminalMessageConstant     = "resume state found but standard input is not a terminal; pass --resume=<y|x|d>"
	inputClosedMessageConstant    = "input closed before a resume answer was given"
	resumeFlagSubjectConstant     = "--resume"
	resumePromptSubjectConstant   = "prompt"
	tooManyAnswersMessageConstant = "too many unsupported resume answers"
	maximumInvalidAnswersConstant = 5
)

// Choice is the operator answer to the resume question.
type Choice string

// Supported choices.
const (
	ChoiceResume  Choice = "y"
	ChoiceExit    Choice = "x"
	ChoiceDiscard Choice = "d"
)

// ParseChoice normalizes a textual answer.
func ParseChoice(answer string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "resume":
		return ChoiceResume, nil
	case "x", "exit":
		return ChoiceExit, nil
	case "d", "discard":
		return ChoiceDiscard, nil
	default:
		return "", fmt.Errorf(invalidAnswerTemplateConstant, answer)
	}
}

// ResumePrompter decides how to treat a saved release state.
type ResumePrompter interface {
	AskResume(resumePoint string) (Choice, error)
}

// IOResumePrompter reads answers from an io.Reader, asking again on unsupported input.
type IOResumePrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOResumePrompter constructs a prompter from the provided reader and writer.
func NewIOResumePrompter(input io.Reader, output io.Writer) *IOResumePrompter {
	return &IOResumePrompter{reader: bufio.NewReader(input), writer: output}
}

// AskResume writes the question and returns the first supported answer.
func (prompter *IOResumePrompter) AskResume(resumePoint string) (Choice, error) {
	question := fmt.Sprintf(resumePromptTemplateConstant, resumePoint)
	for attempt := 0; attempt < maximumInvalidAnswersConstant; attempt++ {
		if writeError := prompter.write(question); writeError != nil {
			return "", writeError
		}
		response, readError := prompter.reader.ReadString('\n')
		if readError != nil && !errors.Is(readError, io.EOF) {
			return "", readError
		}
		choice, parseError := ParseChoice(response)
		if parseError == nil {
			return choice, nil
		}
		if errors.Is(readError, io.EOF) {
			return "", releaseerrors.WrapMessage(releaseerrors.OperationResume, resumePromptSubjectConstant, releaseerrors.ErrPromptUnavailable, inputClosedMessageConstant)
		}
		if writeError := prompter.write(retryMessageConstant); writeError != nil {
			return "", writeError
		}
	}
	return "", releaseerrors.WrapMessage(releaseerrors.OperationResume, resumePromptSubjectConstant, releaseerrors.ErrResumeDeclined, tooManyAnswersMessageConstant)
}

func (prompter *IOResumePrompter) write(message string) error {
	if prompter.writer == nil {
		return nil
	}
	_, writeError := io.WriteString(prompter.writer, message)
	return writeError
}

// FixedResumePrompter answers every question with a preset choice.
type FixedResumePrompter struct {
	choice Choice
}

// NewFixedResumePrompter parses answer into a prompter that never reads input.
func NewFixedResumePrompter(answer string) (FixedResumePrompter, error) {
	choice, parseError := ParseChoice(answer)
	if parseError != nil {
		return FixedResumePrompter{}, releaseerrors.Wrap(releaseerrors.OperationResume, resumeFlagSubjectConstant, releaseerrors.ErrArgumentsInvalid, parseError)
	}
	return FixedResumePrompter{choice: choice}, nil
}

// AskResume returns the preset choice.
func (prompter FixedResumePrompter) AskResume(string) (Choice, error) {
	return prompter.choice, nil
}

type unavailablePrompter struct{}

func (unavailablePrompter) AskResume(string) (Choice, error) {
	return "", releaseerrors.WrapMessage(releaseerrors.OperationResume, resumePromptSubjectConstant, releaseerrors.ErrPromptUnavailable, noTerminalMessageConstant)
}

// TerminalDetector reports whether the reader is attached to an interactive terminal.
type TerminalDetector func(input io.Reader) bool

// IsTerminal reports whether input is a terminal file descriptor.
func IsTerminal(input io.Reader) bool {
	descriptor, hasDescriptor := input.(interface{ Fd() uintptr })
	if !hasDescriptor {
		return false
	}
	return term.IsTerminal(int(descriptor.Fd()))
}

// Resolve picks the prompter for a session: the preset answer when given, the interactive prompter when input
// is a terminal, and otherwise a prompter that fails when asked.
func Resolve(answer string, input io.Reader, output io.Writer, detector TerminalDetector) (ResumePrompter, error) {
	if len(strings.TrimSpace(answer)) > 0 {
		return NewFixedResumePrompter(answer)
	}
	if detector == nil {
		detector = IsTerminal
	}
	if input != nil && detector(input) {
		return NewIOResumePrompter(input, output), nil
	}
	return unavailablePrompter{}, nil
}
