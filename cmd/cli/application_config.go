package cli

import (
	_ "embed"
	"strings"

	"github.com/opentripplanner/custom-release/internal/release/state"
	"github.com/opentripplanner/custom-release/internal/utils"
)

const (
	embeddedConfigurationTypeConstant = "yaml"
	logLevelConfigKeyConstant         = "log_level"
	logFormatConfigKeyConstant        = "log_format"
	upstreamRemoteConfigKeyConstant   = "upstream_remote"
	githubOwnerConfigKeyConstant      = "github_owner"
	githubRepositoryConfigKeyConstant = "github_repository"
	descriptorFileConfigKeyConstant   = "descriptor_file"
	defaultUpstreamRemoteConstant     = "otp"
	defaultGitHubOwnerConstant        = "opentripplanner"
	defaultGitHubRepositoryConstant   = "OpenTripPlanner"
	defaultDescriptorFileConstant     = "pom.xml"
)

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the configuration compiled into the binary and its format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte{}, embeddedDefaultConfiguration...), embeddedConfigurationTypeConstant
}

// ApplicationConfiguration is the decoded custom-release configuration: logging settings plus the release
// settings, all at the top level of the file.
type ApplicationConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	state.RunConfig `mapstructure:",squash"`
}

// Release returns the release settings with surrounding whitespace and empty extension branches removed.
func (configuration ApplicationConfiguration) Release() state.RunConfig {
	releaseConfiguration := configuration.RunConfig
	releaseConfiguration.UpstreamRemote = strings.TrimSpace(releaseConfiguration.UpstreamRemote)
	releaseConfiguration.ReleaseRemote = strings.TrimSpace(releaseConfiguration.ReleaseRemote)
	releaseConfiguration.ReleaseBranch = strings.TrimSpace(releaseConfiguration.ReleaseBranch)
	releaseConfiguration.IncludePullRequestsLabel = strings.TrimSpace(releaseConfiguration.IncludePullRequestsLabel)
	releaseConfiguration.SerializationIDPrefix = strings.TrimSpace(releaseConfiguration.SerializationIDPrefix)
	releaseConfiguration.ProductionURL = strings.TrimSpace(releaseConfiguration.ProductionURL)
	releaseConfiguration.GitHubOwner = strings.TrimSpace(releaseConfiguration.GitHubOwner)
	releaseConfiguration.GitHubRepository = strings.TrimSpace(releaseConfiguration.GitHubRepository)
	releaseConfiguration.DescriptorFile = strings.TrimSpace(releaseConfiguration.DescriptorFile)

	extensionBranches := make([]string, 0, len(releaseConfiguration.ExtensionBranches))
	for _, branch := range releaseConfiguration.ExtensionBranches {
		trimmed := strings.TrimSpace(branch)
		if len(trimmed) == 0 {
			continue
		}
		extensionBranches = append(extensionBranches, trimmed)
	}
	releaseConfiguration.ExtensionBranches = extensionBranches
	return releaseConfiguration
}

func configurationDefaults() map[string]any {
	return map[string]any{
		logLevelConfigKeyConstant:         string(utils.LogLevelError),
		logFormatConfigKeyConstant:        string(utils.LogFormatStructured),
		upstreamRemoteConfigKeyConstant:   defaultUpstreamRemoteConstant,
		githubOwnerConfigKeyConstant:      defaultGitHubOwnerConstant,
		githubRepositoryConfigKeyConstant: defaultGitHubRepositoryConstant,
		descriptorFileConfigKeyConstant:   defaultDescriptorFileConstant,
	}
}
