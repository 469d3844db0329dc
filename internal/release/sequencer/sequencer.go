// Package sequencer runs the named release steps in order and records progress so an interrupted
// release can continue where it stopped.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
	"github.com/opentripplanner/custom-release/internal/release/state"
)

const (
	stepFieldNameConstant         = "step"
	runStepMessageConstant        = "Run step"
	resumeStepMessageConstant     = "Resume step"
	skipStepMessageConstant       = "Skip step"
	completedStepMessageConstant  = "Step completed"
	skippedSectionSuffixConstant  = "  (SKIP STEP)"
	stepNameRequiredMessage       = "step name required"
	stepActionRequiredMessage     = "step action required"
	duplicateStepTemplate         = "step %q declared twice"
	resumePointNotReachedTemplate = "resume point %q was never reached"
	storeRequiredMessage          = "state store required"
	recordRequiredMessage         = "state record required"
)

var (
	// ErrStoreNotConfigured indicates a sequencer built without a store.
	ErrStoreNotConfigured = errors.New(storeRequiredMessage)
	// ErrRecordNotConfigured indicates a sequencer built without a record.
	ErrRecordNotConfigured = errors.New(recordRequiredMessage)
)

// Step is a named release action.
type Step struct {
	Name   string
	Title  string
	Action func(context.Context) error
}

// Announcer prints a banner before each step.
type Announcer interface {
	Section(title string)
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(sequencer *Sequencer) {
		if logger != nil {
			sequencer.logger = logger
		}
	}
}

// WithAnnouncer sets the banner printer.
func WithAnnouncer(announcer Announcer) Option {
	return func(sequencer *Sequencer) {
		sequencer.announcer = announcer
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(sequencer *Sequencer) {
		if now != nil {
			sequencer.now = now
		}
	}
}

// Sequencer executes steps once each, in order, persisting the record before and after every action.
type Sequencer struct {
	store           state.Store
	record          *state.Record
	logger          *zap.Logger
	announcer       Announcer
	now             func() time.Time
	resuming        bool
	resumePoint     string
	resumeCompleted bool
	declaredSteps   map[string]struct{}
}

// New builds a Sequencer over record. When resume is true the steps before the record's resume point are
// skipped; the resume point itself is skipped only when the record marks it completed.
func New(store state.Store, record *state.Record, resume bool, options ...Option) (*Sequencer, error) {
	if store == nil {
		return nil, ErrStoreNotConfigured
	}
	if record == nil {
		return nil, ErrRecordNotConfigured
	}
	sequencer := &Sequencer{
		store:         store,
		record:        record,
		logger:        zap.NewNop(),
		now:           time.Now,
		declaredSteps: map[string]struct{}{},
	}
	for _, option := range options {
		option(sequencer)
	}
	if resume && len(strings.TrimSpace(record.ResumePoint)) > 0 {
		sequencer.resuming = true
		sequencer.resumePoint = record.ResumePoint
		sequencer.resumeCompleted = record.ResumePointCompleted
	}
	return sequencer, nil
}

// Resuming reports whether the sequencer is still skipping towards the resume point.
func (sequencer *Sequencer) Resuming() bool {
	return sequencer.resuming
}

// RunStep executes the step unless it is skipped while resuming, and reports whether the action ran.
// An action error stops the release; the record keeps the step as resume point.
func (sequencer *Sequencer) RunStep(executionContext context.Context, step Step) (bool, error) {
	name := strings.TrimSpace(step.Name)
	if len(name) == 0 {
		return false, releaseerrors.WrapMessage(releaseerrors.OperationStep, "", releaseerrors.ErrStepFailed, stepNameRequiredMessage)
	}
	if step.Action == nil {
		return false, releaseerrors.WrapMessage(releaseerrors.OperationStep, name, releaseerrors.ErrStepFailed, stepActionRequiredMessage)
	}
	if _, declared := sequencer.declaredSteps[name]; declared {
		return false, releaseerrors.WrapMessage(releaseerrors.OperationStep, name, releaseerrors.ErrStepFailed, fmt.Sprintf(duplicateStepTemplate, name))
	}
	sequencer.declaredSteps[name] = struct{}{}

	title := step.Title
	if len(strings.TrimSpace(title)) == 0 {
		title = name
	}

	if sequencer.resuming {
		if name != sequencer.resumePoint {
			return false, sequencer.skip(name, title)
		}
		sequencer.resuming = false
		if sequencer.resumeCompleted {
			return false, sequencer.skip(name, title)
		}
		sequencer.logger.Debug(resumeStepMessageConstant, zap.String(stepFieldNameConstant, name))
	} else {
		sequencer.logger.Debug(runStepMessageConstant, zap.String(stepFieldNameConstant, name))
	}

	if err := executionContext.Err(); err != nil {
		return false, releaseerrors.Wrap(releaseerrors.OperationStep, name, releaseerrors.ErrStepFailed, err)
	}

	sequencer.record.ResumePoint = name
	sequencer.record.ResumePointCompleted = false
	sequencer.record.LastVisitedStep = name
	if saveError := sequencer.persist(name); saveError != nil {
		return false, saveError
	}

	sequencer.announce(title)
	if actionError := step.Action(executionContext); actionError != nil {
		return true, releaseerrors.Wrap(releaseerrors.OperationStep, name, releaseerrors.ErrStepFailed, actionError)
	}

	sequencer.record.ResumePointCompleted = true
	if saveError := sequencer.persist(name); saveError != nil {
		return true, saveError
	}
	sequencer.logger.Debug(completedStepMessageConstant, zap.String(stepFieldNameConstant, name))
	return true, nil
}

// Complete removes the persisted record. It fails when a resume point was never reached, which means the
// step list no longer matches the interrupted run.
func (sequencer *Sequencer) Complete() error {
	if sequencer.resuming {
		return releaseerrors.WrapMessage(releaseerrors.OperationResume, sequencer.resumePoint, releaseerrors.ErrStateUnavailable,
			fmt.Sprintf(resumePointNotReachedTemplate, sequencer.resumePoint))
	}
	if deleteError := sequencer.store.Delete(); deleteError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationStep, "", releaseerrors.ErrStateUnavailable, deleteError)
	}
	sequencer.record.ResumePoint = ""
	sequencer.record.ResumePointCompleted = false
	return nil
}

// skip keeps the resume point untouched and records the visited step for traceability.
func (sequencer *Sequencer) skip(name string, title string) error {
	sequencer.logger.Debug(skipStepMessageConstant, zap.String(stepFieldNameConstant, name))
	sequencer.record.LastVisitedStep = name
	if saveError := sequencer.persist(name); saveError != nil {
		return saveError
	}
	sequencer.announce(title + skippedSectionSuffixConstant)
	return nil
}

func (sequencer *Sequencer) persist(name string) error {
	sequencer.record.UpdatedAt = sequencer.now().UTC()
	if saveError := sequencer.store.Save(*sequencer.record); saveError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationStep, name, releaseerrors.ErrStateUnavailable, saveError)
	}
	return nil
}

func (sequencer *Sequencer) announce(title string) {
	if sequencer.announcer != nil {
		sequencer.announcer.Section(title)
	}
}
