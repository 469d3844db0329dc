// Package release prepares, verifies and publishes a custom release of the project: it merges the base
// revision, labeled pull requests and extension branches into the release branch, sets the next version and
// serialization version id, runs the tests, then tags and pushes the result.
package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/githubapi"
	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
	"github.com/opentripplanner/custom-release/internal/release/prompt"
	"github.com/opentripplanner/custom-release/internal/release/report"
	"github.com/opentripplanner/custom-release/internal/release/sequencer"
	"github.com/opentripplanner/custom-release/internal/release/state"
	"github.com/opentripplanner/custom-release/internal/release/versioning"
)

const (
	repositoryMissingMessageConstant   = "git repository not configured"
	buildToolMissingMessageConstant    = "build tool not configured"
	pullRequestsMissingMessageConstant = "pull request source not configured"
	scriptsMissingMessageConstant      = "script runner not configured"
	reporterMissingMessageConstant     = "reporter not configured"
	prompterMissingMessageConstant     = "resume prompter not configured"
	workingDirectoryMissingMessage     = "working directory not configured"
	baseRevisionRequiredMessage        = "<base-revision> is required unless --release is given"
	baseRevisionForbiddenTemplate      = "<base-revision> is not allowed with option '--release', was: %s"
	stateSubjectConstant               = "state"
	resumeSectionTitleConstant         = "Resume"
	resumeGuidanceConstant             = "A progress file from an interrupted release exists: %s\n  - First fix the merge conflict or failing unit test and commit your changes.\n  - Then resume, and the release continues at the step that failed."
	resumeExitMessageConstant          = "Release not resumed. The progress file is kept."
	resumeDiscardedMessageConstant     = "Progress file deleted: %s"
	resumeContinueMessageConstant      = "The release resumes from the saved state of run %s."
	dryRunStateIgnoredTemplate         = "A progress file exists (%s) but is ignored in dry run."
	unreadableStateWarningTemplate     = "The progress file %s was written by an incompatible custom-release build and cannot be resumed."
	unreadableStateTemplate            = "%w; delete %s or answer 'd' to start a new release"
	unknownResumePointConstant         = "unknown"
	setupSectionTitleConstant          = "Setting up release process and verifying the environment"
	runIDFieldNameConstant             = "run_id"
	resumePointFieldNameConstant       = "resume_point"
	dryRunFieldNameConstant            = "dry_run"
	releaseStartedMessageConstant      = "release started"
	releaseCompletedMessageConstant    = "release completed"
)

var (
	// ErrRepositoryNotConfigured indicates the git repository dependency was missing.
	ErrRepositoryNotConfigured = errors.New(repositoryMissingMessageConstant)
	// ErrBuildToolNotConfigured indicates the build tool dependency was missing.
	ErrBuildToolNotConfigured = errors.New(buildToolMissingMessageConstant)
	// ErrPullRequestSourceNotConfigured indicates the pull request source dependency was missing.
	ErrPullRequestSourceNotConfigured = errors.New(pullRequestsMissingMessageConstant)
	// ErrScriptRunnerNotConfigured indicates the script runner dependency was missing.
	ErrScriptRunnerNotConfigured = errors.New(scriptsMissingMessageConstant)
	// ErrReporterNotConfigured indicates the reporter dependency was missing.
	ErrReporterNotConfigured = errors.New(reporterMissingMessageConstant)
	// ErrPrompterNotConfigured indicates the resume prompter dependency was missing.
	ErrPrompterNotConfigured = errors.New(prompterMissingMessageConstant)
	// ErrWorkingDirectoryNotConfigured indicates the project root was not provided.
	ErrWorkingDirectoryNotConfigured = errors.New(workingDirectoryMissingMessage)
)

// GitRepository is the subset of gitrepo.RepositoryManager the release needs.
type GitRepository interface {
	Version(executionContext context.Context) (string, error)
	FetchAll(executionContext context.Context) error
	Fetch(executionContext context.Context, remoteName string, refspec string) error
	ResetBranch(executionContext context.Context, branchName string, startPoint string) error
	ResetHard(executionContext context.Context, revision string) error
	Merge(executionContext context.Context, revision string) error
	MergeOurs(executionContext context.Context, revision string, message string) error
	DeleteBranch(executionContext context.Context, branchName string, forceDelete bool) error
	ListTags(executionContext context.Context) ([]string, error)
	ShowFile(executionContext context.Context, revision string, filePath string) (string, error)
	ResolveCommitHash(executionContext context.Context, reference string) (string, error)
	RevisionExists(executionContext context.Context, revision string) (bool, error)
	HasLocalChanges(executionContext context.Context) (bool, error)
	IsAncestor(executionContext context.Context, ancestor string, descendant string) (bool, error)
	RecentCommits(executionContext context.Context, revision string, limit int) ([]string, error)
	AddAll(executionContext context.Context) error
	Commit(executionContext context.Context, message string) error
	CreateAnnotatedTag(executionContext context.Context, tagName string, message string) error
	ForcePush(executionContext context.Context, remoteName string, reference string) error
}

// BuildTool is the subset of maven.Client the release needs.
type BuildTool interface {
	Version(executionContext context.Context) (string, error)
	SetVersion(executionContext context.Context, version string) error
	Test(executionContext context.Context) error
}

// PullRequestSource lists the open pull requests carrying a label.
type PullRequestSource interface {
	ListLabeledPullRequests(executionContext context.Context, owner string, repository string, label string) ([]githubapi.PullRequest, error)
}

// ScriptRunner runs curl and the project scripts.
type ScriptRunner interface {
	ExecuteCurl(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteScript(executionContext context.Context, scriptPath string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Reporter prints operator facing progress.
type Reporter interface {
	Section(title string)
	Info(format string, arguments ...any)
	Warn(format string, arguments ...any)
	DryRunSkipped(description string)
	Success()
	Setup(setupReport report.SetupReport) error
}

// ServiceDependencies enumerates collaborators required by the release service.
type ServiceDependencies struct {
	Repository       GitRepository
	BuildTool        BuildTool
	PullRequests     PullRequestSource
	Scripts          ScriptRunner
	Reporter         Reporter
	Prompter         prompt.ResumePrompter
	Logger           *zap.Logger
	Clock            func() time.Time
	WorkingDirectory string
}

// Service orchestrates a release run.
type Service struct {
	repository       GitRepository
	buildTool        BuildTool
	pullRequests     PullRequestSource
	scripts          ScriptRunner
	reporter         Reporter
	prompter         prompt.ResumePrompter
	logger           *zap.Logger
	now              func() time.Time
	workingDirectory string
}

// NewService constructs a Service from dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	switch {
	case dependencies.Repository == nil:
		return nil, ErrRepositoryNotConfigured
	case dependencies.BuildTool == nil:
		return nil, ErrBuildToolNotConfigured
	case dependencies.PullRequests == nil:
		return nil, ErrPullRequestSourceNotConfigured
	case dependencies.Scripts == nil:
		return nil, ErrScriptRunnerNotConfigured
	case dependencies.Reporter == nil:
		return nil, ErrReporterNotConfigured
	case dependencies.Prompter == nil:
		return nil, ErrPrompterNotConfigured
	case len(strings.TrimSpace(dependencies.WorkingDirectory)) == 0:
		return nil, ErrWorkingDirectoryNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repository:       dependencies.Repository,
		buildTool:        dependencies.BuildTool,
		pullRequests:     dependencies.PullRequests,
		scripts:          dependencies.Scripts,
		reporter:         dependencies.Reporter,
		prompter:         dependencies.Prompter,
		logger:           logger,
		now:              clock,
		workingDirectory: dependencies.WorkingDirectory,
	}, nil
}

// StateFilePath returns where the progress file of this project lives.
func (service *Service) StateFilePath() string {
	return filepath.Join(service.workingDirectory, state.DefaultFileName)
}

// Execute runs a release. A saved progress file from an interrupted run triggers the resume question;
// otherwise setup runs from config and options. Dry runs never read or write the progress file.
func (service *Service) Execute(executionContext context.Context, config state.RunConfig, options state.RunOptions) error {
	fileStore := state.NewFileStore(service.StateFilePath())

	var store state.Store = fileStore
	if options.DryRun {
		store = state.NewMemoryStore()
		exists, existsError := fileStore.Exists()
		if existsError != nil {
			return releaseerrors.Wrap(releaseerrors.OperationResume, stateSubjectConstant, releaseerrors.ErrStateUnavailable, existsError)
		}
		if exists {
			service.reporter.Warn(dryRunStateIgnoredTemplate, fileStore.Location())
		}
	} else {
		savedRecord, found, loadError := fileStore.Load()
		if errors.Is(loadError, state.ErrSchemaMismatch) {
			return service.discardUnreadableState(fileStore, loadError)
		}
		if loadError != nil {
			return releaseerrors.Wrap(releaseerrors.OperationResume, fileStore.Location(), releaseerrors.ErrStateUnavailable, loadError)
		}
		if found {
			return service.resume(executionContext, fileStore, savedRecord)
		}
	}

	if optionsError := ValidateOptions(options); optionsError != nil {
		return optionsError
	}

	record := state.NewRecord(config, options, service.now())
	run, runError := newRun(&record, service.workingDirectory)
	if runError != nil {
		return runError
	}

	service.logger.Info(releaseStartedMessageConstant,
		zap.String(runIDFieldNameConstant, record.RunID),
		zap.Bool(dryRunFieldNameConstant, options.DryRun),
	)
	service.reporter.Section(setupSectionTitleConstant)
	if setupError := service.setup(executionContext, run); setupError != nil {
		return setupError
	}
	if setupError := service.reporter.Setup(report.NewSetupReport(record)); setupError != nil {
		return setupError
	}
	return service.runSteps(executionContext, run, store, false)
}

func (service *Service) resume(executionContext context.Context, store *state.FileStore, record state.Record) error {
	service.reporter.Section(resumeSectionTitleConstant)
	service.reporter.Info(resumeGuidanceConstant, store.Location())

	choice, promptError := service.prompter.AskResume(record.ResumePoint)
	if promptError != nil {
		return promptError
	}
	switch choice {
	case prompt.ChoiceExit:
		service.reporter.Info(resumeExitMessageConstant)
		return nil
	case prompt.ChoiceDiscard:
		if deleteError := store.Delete(); deleteError != nil {
			return releaseerrors.Wrap(releaseerrors.OperationResume, store.Location(), releaseerrors.ErrStateUnavailable, deleteError)
		}
		service.reporter.Info(resumeDiscardedMessageConstant, store.Location())
		return nil
	}

	run, runError := newRun(&record, service.workingDirectory)
	if runError != nil {
		return runError
	}
	service.logger.Info(releaseStartedMessageConstant,
		zap.String(runIDFieldNameConstant, record.RunID),
		zap.String(resumePointFieldNameConstant, record.ResumePoint),
	)
	service.reporter.Info(resumeContinueMessageConstant, record.RunID)
	if setupError := service.reporter.Setup(report.NewSetupReport(record)); setupError != nil {
		return setupError
	}
	return service.runSteps(executionContext, run, store, true)
}

// discardUnreadableState handles a progress file from an incompatible build. It cannot be resumed, so only
// exit and discard are honoured.
func (service *Service) discardUnreadableState(store *state.FileStore, loadError error) error {
	unreadableError := releaseerrors.Wrap(releaseerrors.OperationResume, store.Location(), releaseerrors.ErrStateUnavailable,
		fmt.Errorf(unreadableStateTemplate, loadError, store.Location()))

	service.reporter.Section(resumeSectionTitleConstant)
	service.reporter.Warn(unreadableStateWarningTemplate, store.Location())
	choice, promptError := service.prompter.AskResume(unknownResumePointConstant)
	if promptError != nil {
		return unreadableError
	}
	switch choice {
	case prompt.ChoiceExit:
		service.reporter.Info(resumeExitMessageConstant)
		return nil
	case prompt.ChoiceDiscard:
		if deleteError := store.Delete(); deleteError != nil {
			return releaseerrors.Wrap(releaseerrors.OperationResume, store.Location(), releaseerrors.ErrStateUnavailable, deleteError)
		}
		service.reporter.Info(resumeDiscardedMessageConstant, store.Location())
		return nil
	default:
		return unreadableError
	}
}

func (service *Service) runSteps(executionContext context.Context, run *Run, store state.Store, resume bool) error {
	releaseSequencer, sequencerError := sequencer.New(store, run.record, resume,
		sequencer.WithLogger(service.logger),
		sequencer.WithAnnouncer(service.reporter),
		sequencer.WithClock(service.now),
	)
	if sequencerError != nil {
		return sequencerError
	}

	for _, step := range service.releaseSteps(run) {
		if _, stepError := releaseSequencer.RunStep(executionContext, step); stepError != nil {
			return stepError
		}
	}

	if completeError := releaseSequencer.Complete(); completeError != nil {
		return completeError
	}
	service.logger.Info(releaseCompletedMessageConstant, zap.String(runIDFieldNameConstant, run.record.RunID))
	service.reporter.Success()
	return nil
}

// ValidateOptions checks the combination of base revision and release-only mode.
func ValidateOptions(options state.RunOptions) error {
	baseRevision := strings.TrimSpace(options.BaseRevision)
	if options.ReleaseOnly && len(baseRevision) > 0 {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, "arguments", releaseerrors.ErrArgumentsInvalid,
			fmt.Sprintf(baseRevisionForbiddenTemplate, baseRevision))
	}
	if !options.ReleaseOnly && len(baseRevision) == 0 {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, "arguments", releaseerrors.ErrArgumentsInvalid, baseRevisionRequiredMessage)
	}
	return nil
}

// Run carries the record of one release and the values derived from its configuration.
type Run struct {
	record           *state.Record
	format           versioning.SerializationIDFormat
	workingDirectory string
	tagVersions      versioning.TagVersions
	tags             []string
}

func newRun(record *state.Record, workingDirectory string) (*Run, error) {
	if validationError := record.Config.Validate(); validationError != nil {
		return nil, releaseerrors.Wrap(releaseerrors.OperationSetup, "config", releaseerrors.ErrConfigurationInvalid, validationError)
	}
	format, formatError := versioning.NewSerializationIDFormat(record.Config.SerializationIDPrefix)
	if formatError != nil {
		return nil, releaseerrors.Wrap(releaseerrors.OperationSetup, "ser_ver_id_prefix", releaseerrors.ErrConfigurationInvalid, formatError)
	}
	return &Run{record: record, format: format, workingDirectory: workingDirectory}, nil
}

// Config returns the release configuration.
func (run *Run) Config() state.RunConfig {
	return run.record.Config
}

// Options returns the command line options.
func (run *Run) Options() state.RunOptions {
	return run.record.Options
}

// State returns the derived release values.
func (run *Run) State() state.RunState {
	return run.record.State
}

// PullRequests returns the pull requests merged into the release.
func (run *Run) PullRequests() []state.PullRequest {
	return run.record.PullRequests
}

func (run *Run) projectPath(relativePath string) string {
	return filepath.Join(run.workingDirectory, relativePath)
}
