package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	embeddedConfigurationReadErrorTemplateConstant = "unable to read embedded configuration: %w"
	configurationFileReadErrorTemplateConstant     = "unable to read configuration file %s: %w"
	configurationDecodeErrorTemplateConstant       = "unable to decode configuration: %w"
	configurationTargetMissingMessageConstant      = "configuration target not provided"
	environmentKeySeparatorConstant                = "."
	environmentKeyReplacementConstant              = "_"
	listSeparatorConstant                          = ","
)

// ErrConfigurationTargetMissing indicates LoadConfiguration was called without a decode target.
var ErrConfigurationTargetMissing = errors.New(configurationTargetMissingMessageConstant)

var alternateConfigurationExtensions = []string{"yml", "json"}

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers embedded defaults, a configuration file and environment overrides using viper.
type ConfigurationLoader struct {
	configurationName      string
	configurationType      string
	environmentPrefix      string
	searchPaths            []string
	fallbackFiles          []string
	embeddedConfiguration  []byte
	embeddedConfigFileType string
}

// NewConfigurationLoader constructs a loader for the named configuration file searched in the provided directories.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: strings.TrimSpace(configurationName),
		configurationType: strings.TrimSpace(configurationType),
		environmentPrefix: strings.TrimSpace(environmentPrefix),
		searchPaths:       append([]string{}, searchPaths...),
	}
}

// SetEmbeddedConfiguration registers configuration content compiled into the binary.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte{}, configurationData...)
	loader.embeddedConfigFileType = strings.TrimSpace(configurationType)
}

// SetFallbackFiles registers files read when no named configuration file exists in the search paths.
// The first existing file wins.
func (loader *ConfigurationLoader) SetFallbackFiles(filePaths ...string) {
	loader.fallbackFiles = append([]string{}, filePaths...)
}

// LoadConfiguration merges defaults, embedded content, the configuration file and environment values into target.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, ErrConfigurationTargetMissing
	}

	viperInstance := viper.New()
	for key, value := range defaultValues {
		viperInstance.SetDefault(key, value)
	}

	if len(loader.embeddedConfiguration) > 0 {
		embeddedType := loader.embeddedConfigFileType
		if len(embeddedType) == 0 {
			embeddedType = loader.configurationType
		}
		viperInstance.SetConfigType(embeddedType)
		if readError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationReadErrorTemplateConstant, readError)
		}
	}

	metadata := LoadedConfiguration{}
	resolvedPath := strings.TrimSpace(configurationFilePath)
	if len(resolvedPath) == 0 {
		resolvedPath = loader.locateConfigurationFile()
	}

	if len(resolvedPath) > 0 {
		fileContent, readError := os.ReadFile(resolvedPath)
		if readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplateConstant, resolvedPath, readError)
		}
		viperInstance.SetConfigType(loader.resolveFileType(resolvedPath))
		if mergeError := viperInstance.MergeConfig(bytes.NewReader(fileContent)); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplateConstant, resolvedPath, mergeError)
		}
		metadata.ConfigFileUsed = resolvedPath
	}

	if len(loader.environmentPrefix) > 0 {
		viperInstance.SetEnvPrefix(loader.environmentPrefix)
	}
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorConstant, environmentKeyReplacementConstant))
	viperInstance.AutomaticEnv()

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
	))
	if decodeError := viperInstance.Unmarshal(target, decodeHook); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return metadata, nil
}

func (loader *ConfigurationLoader) locateConfigurationFile() string {
	if len(loader.configurationName) == 0 {
		return ""
	}
	for _, searchPath := range loader.searchPaths {
		trimmedPath := strings.TrimSpace(searchPath)
		if len(trimmedPath) == 0 {
			continue
		}
		for _, fileName := range loader.candidateFileNames() {
			candidatePath := filepath.Join(trimmedPath, fileName)
			fileInfo, statError := os.Stat(candidatePath)
			if statError != nil || fileInfo.IsDir() {
				continue
			}
			return candidatePath
		}
	}
	for _, fallbackFile := range loader.fallbackFiles {
		trimmedPath := strings.TrimSpace(fallbackFile)
		if len(trimmedPath) == 0 {
			continue
		}
		if fileInfo, statError := os.Stat(trimmedPath); statError == nil && !fileInfo.IsDir() {
			return trimmedPath
		}
	}
	return ""
}

// candidateFileNames lists the configuration file names tried in each search path, the configured type first.
func (loader *ConfigurationLoader) candidateFileNames() []string {
	if len(loader.configurationType) == 0 {
		return []string{loader.configurationName}
	}
	fileNames := []string{loader.configurationName + "." + loader.configurationType}
	for _, extension := range alternateConfigurationExtensions {
		if extension == loader.configurationType {
			continue
		}
		fileNames = append(fileNames, loader.configurationName+"."+extension)
	}
	return fileNames
}

func (loader *ConfigurationLoader) resolveFileType(filePath string) string {
	extension := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	switch extension {
	case "yml":
		return "yaml"
	case "":
		return loader.configurationType
	default:
		return extension
	}
}
