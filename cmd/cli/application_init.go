package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	initFlagNameConstant               = "init"
	initFlagUsageConstant              = "Write the embedded default configuration to local (./custom-release.yaml) or user ($HOME/.custom-release/custom-release.yaml) scope and exit."
	forceFlagNameConstant              = "force"
	forceFlagUsageConstant             = "Overwrite an existing configuration file when initializing."
	initializedFileTemplateConstant    = "Configuration written to %s\n"
	initializedMessageConstant         = "configuration file created"
	unsupportedScopeTemplateConstant   = "unsupported initialization scope %q"
	homeDirectoryErrorTemplateConstant = "unable to determine user home directory: %w"
	directoryCreationTemplateConstant  = "unable to ensure configuration directory %s: %w"
	existingFileTemplateConstant       = "configuration file already exists at %s (use --force to overwrite)"
	existingDirectoryTemplateConstant  = "configuration path %s is a directory"
	fileWriteErrorTemplateConstant     = "unable to write configuration file %s: %w"
	configurationFileNameConstant      = configurationNameConstant + "." + configurationTypeConstant
	configurationDirectoryModeConstant = 0o755
	configurationFileModeConstant      = 0o644
)

type initializationScope string

const (
	initializationScopeLocal initializationScope = "local"
	initializationScopeUser  initializationScope = "user"
)

type initializationFlagValues struct {
	scope string
	force bool
}

func (application *Application) registerInitializationFlags(command *cobra.Command) {
	command.Flags().StringVar(&application.initialization.scope, initFlagNameConstant, string(initializationScopeLocal), initFlagUsageConstant)
	command.Flags().BoolVar(&application.initialization.force, forceFlagNameConstant, false, forceFlagUsageConstant)
}

// normalizeInitializationScopeArguments lets --init stand alone: a bare --init, or one not followed by a
// scope, becomes --init=local.
func normalizeInitializationScopeArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	bareFlag := "--" + initFlagNameConstant
	localScopeArgument := bareFlag + "=" + string(initializationScopeLocal)
	normalized := make([]string, 0, len(arguments))
	for index, argument := range arguments {
		if scopeValue, hasValue := strings.CutPrefix(argument, bareFlag+"="); hasValue && strings.TrimSpace(scopeValue) == "" {
			argument = localScopeArgument
		}
		if argument == bareFlag && (index+1 == len(arguments) || !isInitializationScope(arguments[index+1])) {
			argument = localScopeArgument
		}
		normalized = append(normalized, argument)
	}
	return normalized
}

func isInitializationScope(argument string) bool {
	switch initializationScope(strings.ToLower(strings.TrimSpace(argument))) {
	case initializationScopeLocal, initializationScopeUser:
		return true
	}
	return false
}

// handleConfigurationInitialization writes the embedded configuration when --init was given. The boolean
// reports whether --init was handled, in which case no release runs.
func (application *Application) handleConfigurationInitialization(command *cobra.Command) (bool, error) {
	if command == nil || !command.Flags().Changed(initFlagNameConstant) {
		return false, nil
	}

	targetDirectory, targetError := application.initializationDirectory(application.initialization.scope)
	if targetError != nil {
		return true, targetError
	}
	targetFile := filepath.Join(targetDirectory, configurationFileNameConstant)
	configurationContent, _ := EmbeddedDefaultConfiguration()
	if writeError := writeConfigurationFile(targetDirectory, targetFile, configurationContent, application.initialization.force); writeError != nil {
		return true, writeError
	}

	application.logger.Info(initializedMessageConstant, zap.String(configurationFileFieldConstant, targetFile))
	fmt.Fprintf(command.OutOrStdout(), initializedFileTemplateConstant, targetFile)
	return true, nil
}

func (application *Application) initializationDirectory(scope string) (string, error) {
	switch initializationScope(strings.ToLower(strings.TrimSpace(scope))) {
	case "", initializationScopeLocal:
		return application.resolveWorkingDirectory()
	case initializationScopeUser:
		homeDirectory, lookupError := os.UserHomeDir()
		if lookupError != nil {
			return "", fmt.Errorf(homeDirectoryErrorTemplateConstant, lookupError)
		}
		return filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant), nil
	default:
		return "", fmt.Errorf(unsupportedScopeTemplateConstant, strings.TrimSpace(scope))
	}
}

func writeConfigurationFile(directory string, filePath string, content []byte, overwrite bool) error {
	if mkdirError := os.MkdirAll(directory, configurationDirectoryModeConstant); mkdirError != nil {
		return fmt.Errorf(directoryCreationTemplateConstant, directory, mkdirError)
	}

	existing, statError := os.Stat(filePath)
	switch {
	case errors.Is(statError, fs.ErrNotExist):
	case statError != nil:
		return fmt.Errorf(fileWriteErrorTemplateConstant, filePath, statError)
	case existing.IsDir():
		return fmt.Errorf(existingDirectoryTemplateConstant, filePath)
	case !overwrite:
		return fmt.Errorf(existingFileTemplateConstant, filePath)
	}

	if writeError := os.WriteFile(filePath, content, configurationFileModeConstant); writeError != nil {
		return fmt.Errorf(fileWriteErrorTemplateConstant, filePath, writeError)
	}
	return nil
}
