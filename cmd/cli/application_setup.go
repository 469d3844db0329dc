package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/utils"
	flagutils "github.com/opentripplanner/custom-release/internal/utils/flags"
)

const (
	environmentPrefixConstant                  = "CUSTOM_RELEASE"
	configurationNameConstant                  = "custom-release"
	configurationTypeConstant                  = "yaml"
	configurationSearchPathEnvironmentConstant = "CUSTOM_RELEASE_CONFIG_SEARCH_PATH"
	xdgConfigHomeEnvironmentConstant           = "XDG_CONFIG_HOME"
	scriptDirectoryNameConstant                = "script"
	userConfigurationDirectoryNameConstant     = ".custom-release"
	legacyConfigurationFileNameConstant        = "custom-release-env.json"
	configurationLoadErrorTemplateConstant     = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant        = "unable to create logger: %w"
	workingDirectoryErrorTemplateConstant      = "unable to determine working directory: %w"
	configurationLoadedMessageConstant         = "configuration loaded"
	configurationLoadedConsoleTemplateConstant = "Loaded configuration %s (log level %s, log format %s)"
	embeddedConfigurationLabelConstant         = "<embedded defaults>"
	logLevelFieldConstant                      = "log_level"
	logFormatFieldConstant                     = "log_format"
	configurationFileFieldConstant             = "config_file"
)

// ignoredSyncErrors are returned by Sync on terminals and pipes, which cannot be fsynced.
var ignoredSyncErrors = []error{syscall.ENOTSUP, syscall.EINVAL, syscall.EBADF, syscall.ENOTTY}

// configurationSearchPaths lists the directories searched for custom-release.yaml: the project root, its
// script directory, then the user configuration directories. CUSTOM_RELEASE_CONFIG_SEARCH_PATH replaces the list.
func (application *Application) configurationSearchPaths() []string {
	if override := strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentConstant)); override != "" {
		var searchPaths []string
		for _, entry := range filepath.SplitList(override) {
			if trimmed := strings.TrimSpace(entry); trimmed != "" {
				searchPaths = append(searchPaths, trimmed)
			}
		}
		return searchPaths
	}

	projectRoot := application.projectRoot()
	searchPaths := []string{projectRoot, filepath.Join(projectRoot, scriptDirectoryNameConstant)}

	var userBaseDirectories []string
	userBaseDirectories = append(userBaseDirectories, os.Getenv(xdgConfigHomeEnvironmentConstant))
	if userConfigDirectory, lookupError := os.UserConfigDir(); lookupError == nil {
		userBaseDirectories = append(userBaseDirectories, userConfigDirectory)
	}
	if homeDirectory, lookupError := os.UserHomeDir(); lookupError == nil {
		userBaseDirectories = append(userBaseDirectories, homeDirectory)
	}
	for _, baseDirectory := range userBaseDirectories {
		baseDirectory = strings.TrimSpace(baseDirectory)
		if baseDirectory == "" {
			continue
		}
		candidate := filepath.Join(baseDirectory, userConfigurationDirectoryNameConstant)
		if !slices.Contains(searchPaths, candidate) {
			searchPaths = append(searchPaths, candidate)
		}
	}
	return searchPaths
}

// legacyConfigurationFiles lists script/custom-release-env.json, read when no custom-release configuration
// file is found. An explicit search path disables it.
func (application *Application) legacyConfigurationFiles() []string {
	if strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentConstant)) != "" {
		return nil
	}
	return []string{filepath.Join(application.projectRoot(), scriptDirectoryNameConstant, legacyConfigurationFileNameConstant)}
}

func (application *Application) projectRoot() string {
	if application.workingDirectory == "" {
		return "."
	}
	return application.workingDirectory
}

// initializeConfiguration loads the configuration, applies the logging flags, builds the loggers and stores
// the resolved values in the command context.
func (application *Application) initializeConfiguration(command *cobra.Command) error {
	application.configuration = ApplicationConfiguration{}
	loadedConfiguration, loadError := application.loader.LoadConfiguration(application.persistentFlags.configFilePath, configurationDefaults(), &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.loadedConfiguration = loadedConfiguration

	if _, changed, _ := flagutils.StringFlag(command, logLevelFlagNameConstant); changed {
		application.configuration.LogLevel = application.persistentFlags.logLevel
	}
	if _, changed, _ := flagutils.StringFlag(command, logFormatFlagNameConstant); changed {
		application.configuration.LogFormat = application.persistentFlags.logFormat
	}
	executionFlags := flagutils.CollectExecutionFlags(command)
	if executionFlags.Debug {
		application.configuration.LogLevel = string(utils.LogLevelDebug)
	}

	loggerOutputs, loggerError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(strings.ToLower(strings.TrimSpace(application.configuration.LogLevel))),
		utils.LogFormat(strings.ToLower(strings.TrimSpace(application.configuration.LogFormat))),
	)
	if loggerError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerError)
	}
	application.logger = nopIfNil(loggerOutputs.DiagnosticLogger)
	application.consoleLogger = nopIfNil(loggerOutputs.ConsoleLogger)
	application.logLoadedConfiguration()

	if command == nil {
		return nil
	}
	commandContext := application.contextAccessor.WithConfigurationFilePath(command.Context(), loadedConfiguration.ConfigFileUsed)
	commandContext = application.contextAccessor.WithExecutionFlags(commandContext, executionFlags)
	commandContext = application.contextAccessor.WithLogLevel(commandContext, application.configuration.LogLevel)
	command.SetContext(commandContext)
	command.Root().SetContext(commandContext)
	return nil
}

func (application *Application) logLoadedConfiguration() {
	configurationFile := application.loadedConfiguration.ConfigFileUsed
	if configurationFile == "" {
		configurationFile = embeddedConfigurationLabelConstant
	}
	if application.humanReadableLoggingEnabled() {
		application.consoleLogger.Debug(fmt.Sprintf(configurationLoadedConsoleTemplateConstant, configurationFile, application.configuration.LogLevel, application.configuration.LogFormat))
		return
	}
	application.logger.Debug(
		configurationLoadedMessageConstant,
		zap.String(configurationFileFieldConstant, configurationFile),
		zap.String(logLevelFieldConstant, application.configuration.LogLevel),
		zap.String(logFormatFieldConstant, application.configuration.LogFormat),
	)
}

func (application *Application) humanReadableLoggingEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(application.configuration.LogFormat), string(utils.LogFormatConsole))
}

func (application *Application) resolveWorkingDirectory() (string, error) {
	if application.workingDirectory != "" {
		return application.workingDirectory, nil
	}
	workingDirectory, lookupError := os.Getwd()
	if lookupError != nil {
		return "", fmt.Errorf(workingDirectoryErrorTemplateConstant, lookupError)
	}
	return workingDirectory, nil
}

func (application *Application) flushLoggers() error {
	for _, logger := range []*zap.Logger{application.logger, application.consoleLogger} {
		if logger == nil {
			continue
		}
		syncError := logger.Sync()
		if syncError == nil || slices.ContainsFunc(ignoredSyncErrors, func(ignored error) bool { return errors.Is(syncError, ignored) }) {
			continue
		}
		return syncError
	}
	return nil
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
