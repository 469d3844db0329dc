package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/githubapi"
	"github.com/opentripplanner/custom-release/internal/githubauth"
	"github.com/opentripplanner/custom-release/internal/gitrepo"
	"github.com/opentripplanner/custom-release/internal/maven"
	"github.com/opentripplanner/custom-release/internal/release"
	"github.com/opentripplanner/custom-release/internal/release/prompt"
	"github.com/opentripplanner/custom-release/internal/release/report"
	"github.com/opentripplanner/custom-release/internal/release/state"
	"github.com/opentripplanner/custom-release/internal/utils"
	flagutils "github.com/opentripplanner/custom-release/internal/utils/flags"
	"github.com/opentripplanner/custom-release/internal/version"
)

const (
	releaseOnlyFlagNameConstant             = "release"
	releaseOnlyFlagUsageConstant            = "Release the current checkout of the release branch without merging anything; <base-revision> must be omitted"
	serializationIDFlagNameConstant         = "ser-ver-id"
	serializationIDFlagUsageConstant        = "Bump the serialization version id even when no merged change requires it"
	skipPullRequestsFlagNameConstant        = "skip-prs"
	skipPullRequestsFlagUsageConstant       = "Do not merge the labeled upstream pull requests"
	summaryFlagNameConstant                 = "summary"
	summaryFlagUsageConstant                = "Print a Markdown summary of the release"
	versionFlagNameConstant                 = "version"
	versionFlagUsageConstant                = "Print the application version and exit"
	versionOutputTemplateConstant           = "custom-release version: %s\n"
	versionCommandUseNameConstant           = "version"
	versionCommandShortDescriptionConstant  = "Print the custom-release version"
	versionCommandLongDescriptionConstant   = "version prints the current custom-release build identifier."
	rootCommandInfoMessageConstant          = "custom-release executed"
	rootCommandDebugMessageConstant         = "custom-release options"
	logFieldBaseRevisionConstant            = "base_revision"
	logFieldDryRunConstant                  = "dry_run"
	logFieldReleaseOnlyConstant             = "release_only"
	logFieldBumpSerializationIDConstant     = "bump_ser_ver_id"
	logFieldSkipPullRequestsConstant        = "skip_prs"
	logFieldPrintSummaryConstant            = "summary"
	logFieldWorkingDirectoryConstant        = "working_directory"
	logFieldConfigurationFileConstant       = "config_file"
	releaseExecutorCreationTemplateConstant = "unable to prepare release: %w"
)

type releaseFlagValues struct {
	releaseOnly         bool
	bumpSerializationID bool
	skipPullRequests    bool
	printSummary        bool
}

// ReleaseExecutor runs one release.
type ReleaseExecutor interface {
	Execute(executionContext context.Context, config state.RunConfig, options state.RunOptions) error
}

// ReleaseEnvironment carries what the CLI resolved for a release run.
type ReleaseEnvironment struct {
	Logger               *zap.Logger
	HumanReadableLogging bool
	WorkingDirectory     string
	Prompter             prompt.ResumePrompter
	Output               io.Writer
}

// ReleaseExecutorFactory builds the release executor for an environment.
type ReleaseExecutorFactory func(environment ReleaseEnvironment) (ReleaseExecutor, error)

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	flagSet := cobraCommand.Flags()
	flagSet.BoolVar(&application.releaseFlags.releaseOnly, releaseOnlyFlagNameConstant, false, releaseOnlyFlagUsageConstant)
	flagSet.BoolVar(&application.releaseFlags.bumpSerializationID, serializationIDFlagNameConstant, false, serializationIDFlagUsageConstant)
	flagSet.BoolVar(&application.releaseFlags.skipPullRequests, skipPullRequestsFlagNameConstant, false, skipPullRequestsFlagUsageConstant)
	flagSet.BoolVar(&application.releaseFlags.printSummary, summaryFlagNameConstant, false, summaryFlagUsageConstant)
	flagSet.BoolVar(&application.versionFlag, versionFlagNameConstant, false, versionFlagUsageConstant)

	versionCommand := &cobra.Command{
		Use:   versionCommandUseNameConstant,
		Short: versionCommandShortDescriptionConstant,
		Long:  versionCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			application.printVersion(command)
			return nil
		},
	}
	cobraCommand.AddCommand(versionCommand)
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.versionFlag {
		application.printVersion(command)
		return nil
	}

	initializationHandled, initializationError := application.handleConfigurationInitialization(command)
	if initializationHandled {
		return initializationError
	}

	executionFlags, _ := flagutils.ResolveExecutionFlags(command)
	options := application.releaseOptions(command.Context(), executionFlags, arguments)
	configurationFilePath, _ := application.contextAccessor.ConfigurationFilePath(command.Context())

	workingDirectory, workingDirectoryError := application.resolveWorkingDirectory()
	if workingDirectoryError != nil {
		return workingDirectoryError
	}

	prompter, prompterError := prompt.Resolve(executionFlags.Resume, application.streams.input, application.streams.output, application.terminalDetector)
	if prompterError != nil {
		return prompterError
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldBaseRevisionConstant, options.BaseRevision),
		zap.Bool(logFieldDryRunConstant, options.DryRun),
		zap.String(logFieldWorkingDirectoryConstant, workingDirectory),
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
	)
	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Bool(logFieldReleaseOnlyConstant, options.ReleaseOnly),
		zap.Bool(logFieldBumpSerializationIDConstant, options.BumpSerializationID),
		zap.Bool(logFieldSkipPullRequestsConstant, options.SkipPullRequests),
		zap.Bool(logFieldPrintSummaryConstant, options.PrintSummary),
	)

	executor, executorError := application.releaseExecutorFactory(ReleaseEnvironment{
		Logger:               application.logger,
		HumanReadableLogging: application.humanReadableLoggingEnabled(),
		WorkingDirectory:     workingDirectory,
		Prompter:             prompter,
		Output:               command.OutOrStdout(),
	})
	if executorError != nil {
		return fmt.Errorf(releaseExecutorCreationTemplateConstant, executorError)
	}

	return executor.Execute(command.Context(), application.configuration.Release(), options)
}

func (application *Application) releaseOptions(executionContext context.Context, executionFlags utils.ExecutionFlags, arguments []string) state.RunOptions {
	baseRevision := ""
	if len(arguments) > 0 {
		baseRevision = strings.TrimSpace(arguments[0])
	}
	return state.RunOptions{
		BaseRevision:        baseRevision,
		DryRun:              executionFlags.DryRun,
		Debug:               executionFlags.Debug || application.contextAccessor.DebugEnabled(executionContext),
		ReleaseOnly:         application.releaseFlags.releaseOnly,
		BumpSerializationID: application.releaseFlags.bumpSerializationID,
		SkipPullRequests:    application.releaseFlags.skipPullRequests,
		PrintSummary:        application.releaseFlags.printSummary,
	}
}

func defaultReleaseExecutorFactory(environment ReleaseEnvironment) (ReleaseExecutor, error) {
	shellExecutor, executorError := execshell.NewShellExecutor(environment.Logger, execshell.NewOSCommandRunner(), environment.HumanReadableLogging)
	if executorError != nil {
		return nil, executorError
	}

	repository, repositoryError := gitrepo.NewRepositoryManager(shellExecutor, environment.WorkingDirectory)
	if repositoryError != nil {
		return nil, repositoryError
	}

	buildTool, buildToolError := maven.NewClient(shellExecutor, environment.WorkingDirectory, utils.NewFlushingWriter(environment.Output))
	if buildToolError != nil {
		return nil, buildToolError
	}

	pullRequests, pullRequestsError := githubapi.NewClient(shellExecutor, func() (string, bool) {
		return githubauth.ResolveToken(nil)
	})
	if pullRequestsError != nil {
		return nil, pullRequestsError
	}

	service, serviceError := release.NewService(release.ServiceDependencies{
		Repository:       repository,
		BuildTool:        buildTool,
		PullRequests:     pullRequests,
		Scripts:          shellExecutor,
		Reporter:         report.NewReporter(environment.Output),
		Prompter:         environment.Prompter,
		Logger:           environment.Logger,
		WorkingDirectory: environment.WorkingDirectory,
	})
	if serviceError != nil {
		return nil, serviceError
	}
	return service, nil
}

func (application *Application) resolveVersion(executionContext context.Context) string {
	dependencies := version.Dependencies{}
	if workingDirectory, workingDirectoryError := application.resolveWorkingDirectory(); workingDirectoryError == nil {
		dependencies.WorkingDirectory = workingDirectory
	}
	if gitExecutor, executorError := execshell.NewShellExecutor(application.logger, execshell.NewOSCommandRunner(), application.humanReadableLoggingEnabled()); executorError == nil {
		dependencies.GitExecutor = gitExecutor
	}
	return strings.TrimSpace(version.Detect(executionContext, dependencies))
}

func (application *Application) printVersion(command *cobra.Command) {
	fmt.Fprintf(command.OutOrStdout(), versionOutputTemplateConstant, application.versionResolver(command.Context()))
}
