package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/release/prompt"
	"github.com/opentripplanner/custom-release/internal/release/report"
	"github.com/opentripplanner/custom-release/internal/utils"
	flagutils "github.com/opentripplanner/custom-release/internal/utils/flags"
)

const (
	applicationNameConstant             = "custom-release"
	applicationUseConstant              = "custom-release [flags] [<base-revision>]"
	applicationShortDescriptionConstant = "Build a custom release of OpenTripPlanner"
	applicationLongDescriptionConstant  = "custom-release merges <base-revision>, labeled upstream pull requests and the extension branches into the release branch, sets the next fork version and serialization version id, runs the tests, then tags and pushes the release.\n\nRun it from the project root. A failed merge or test leaves a progress file; fix the problem, commit, and run custom-release again to resume."
	applicationExampleConstant          = "  custom-release otp/dev-2.x\n  custom-release --dry-run --summary v2.8.0\n  custom-release --release"
	configFileFlagNameConstant          = "config"
	configFileFlagUsageConstant         = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant            = "log-level"
	logLevelFlagUsageConstant           = "Override the configured log level."
	logFormatFlagNameConstant           = "log-format"
	logFormatFlagUsageConstant          = "Override the configured log format (structured or console)."
	loggerFlushErrorTemplateConstant    = "unable to flush logger: %w"
)

// ApplicationOption customizes an Application before its commands are built.
type ApplicationOption func(*Application)

// WithReleaseExecutorFactory replaces the factory building the release service.
func WithReleaseExecutorFactory(factory ReleaseExecutorFactory) ApplicationOption {
	return func(application *Application) {
		if factory != nil {
			application.releaseExecutorFactory = factory
		}
	}
}

// WithStreams replaces the standard input, output and error streams. Nil streams keep the defaults.
func WithStreams(input io.Reader, output io.Writer, errorOutput io.Writer) ApplicationOption {
	return func(application *Application) {
		if input != nil {
			application.streams.input = input
		}
		if output != nil {
			application.streams.output = output
		}
		if errorOutput != nil {
			application.streams.errorOutput = errorOutput
		}
	}
}

// WithTerminalDetector replaces the check deciding whether the resume question can be asked interactively.
func WithTerminalDetector(detector prompt.TerminalDetector) ApplicationOption {
	return func(application *Application) {
		if detector != nil {
			application.terminalDetector = detector
		}
	}
}

// WithWorkingDirectory sets the project root instead of the process working directory.
func WithWorkingDirectory(workingDirectory string) ApplicationOption {
	return func(application *Application) {
		application.workingDirectory = strings.TrimSpace(workingDirectory)
	}
}

// WithVersionResolver replaces the build version lookup.
func WithVersionResolver(resolver func(context.Context) string) ApplicationOption {
	return func(application *Application) {
		if resolver != nil {
			application.versionResolver = resolver
		}
	}
}

type applicationStreams struct {
	input       io.Reader
	output      io.Writer
	errorOutput io.Writer
}

type persistentFlagValues struct {
	configFilePath string
	logLevel       string
	logFormat      string
}

type loggerOutputsFactory interface {
	CreateLoggerOutputs(utils.LogLevel, utils.LogFormat) (utils.LoggerOutputs, error)
}

// Application is the custom-release command line: the cobra root command, its configuration and its loggers.
type Application struct {
	rootCommand            *cobra.Command
	loader                 *utils.ConfigurationLoader
	loggerFactory          loggerOutputsFactory
	logger                 *zap.Logger
	consoleLogger          *zap.Logger
	configuration          ApplicationConfiguration
	loadedConfiguration    utils.LoadedConfiguration
	contextAccessor        utils.CommandContextAccessor
	persistentFlags        persistentFlagValues
	initialization         initializationFlagValues
	releaseFlags           releaseFlagValues
	versionFlag            bool
	versionResolver        func(context.Context) string
	releaseExecutorFactory ReleaseExecutorFactory
	terminalDetector       prompt.TerminalDetector
	workingDirectory       string
	streams                applicationStreams
}

// NewApplication builds the command line with the production release executor unless an option replaces it.
func NewApplication(options ...ApplicationOption) *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(os.Stderr),
		logger:                 zap.NewNop(),
		consoleLogger:          zap.NewNop(),
		contextAccessor:        utils.NewCommandContextAccessor(),
		releaseExecutorFactory: defaultReleaseExecutorFactory,
		terminalDetector:       prompt.IsTerminal,
		streams:                applicationStreams{input: os.Stdin, output: os.Stdout, errorOutput: os.Stderr},
	}
	application.versionResolver = application.resolveVersion
	for _, option := range options {
		if option != nil {
			option(application)
		}
	}

	application.loader = utils.NewConfigurationLoader(configurationNameConstant, configurationTypeConstant, environmentPrefixConstant, application.configurationSearchPaths())
	application.loader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	application.loader.SetFallbackFiles(application.legacyConfigurationFiles()...)
	application.rootCommand = application.newRootCommand()
	return application
}

func (application *Application) newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           applicationUseConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Example:       applicationExampleConstant,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, _ []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: application.runRootCommand,
	}
	rootCommand.SetContext(context.Background())
	rootCommand.SetIn(application.streams.input)
	rootCommand.SetOut(application.streams.output)
	rootCommand.SetErr(application.streams.errorOutput)

	persistentFlagSet := rootCommand.PersistentFlags()
	persistentFlagSet.StringVar(&application.persistentFlags.configFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlagSet.StringVar(&application.persistentFlags.logLevel, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlagSet.StringVar(&application.persistentFlags.logFormat, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	flagutils.BindExecutionFlags(rootCommand)

	application.registerInitializationFlags(rootCommand)
	application.registerCommands(rootCommand)
	return rootCommand
}

// Execute runs the command line with the process arguments.
func (application *Application) Execute() error {
	return application.ExecuteArguments(os.Args[1:])
}

// ExecuteArguments runs the command line with arguments. A failure is reported on the error stream before
// it is returned.
func (application *Application) ExecuteArguments(arguments []string) error {
	application.rootCommand.SetArgs(normalizeInitializationScopeArguments(flagutils.NormalizeLegacyArguments(arguments)))

	executionError := application.rootCommand.Execute()
	if executionError != nil {
		report.NewReporter(application.streams.errorOutput).Error(executionError)
	}
	if flushError := application.flushLoggers(); flushError != nil && executionError == nil {
		return fmt.Errorf(loggerFlushErrorTemplateConstant, flushError)
	}
	return executionError
}
