// Package version reports the custom-release build identifier.
package version

import (
	"context"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/execshell"
)

const (
	// Unknown is reported when no source yields a version.
	Unknown = "unknown"

	develBuildVersionConstant        = "(devel)"
	develVersionConstant             = "devel"
	gitTerminalPromptVariable        = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabled        = "0"
	revParseSubcommandConstant       = "rev-parse"
	showTopLevelFlagConstant         = "--show-toplevel"
	describeSubcommandConstant       = "describe"
	tagsFlagConstant                 = "--tags"
	exactMatchFlagConstant           = "--exact-match"
	longFlagConstant                 = "--long"
	dirtyFlagConstant                = "--dirty"
	vcsRevisionSettingConstant       = "vcs.revision"
	vcsModifiedSettingConstant       = "vcs.modified"
	shortRevisionLengthConstant      = 12
	modifiedRevisionSuffixConstant   = "-dirty"
	revisionVersionPrefixConstant    = "devel-"
	modifiedSettingTrueValueConstant = "true"
)

// BuildVersion is set at link time with -ldflags "-X .../internal/version.BuildVersion=<tag>".
var BuildVersion string

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// GitExecutor runs git for the checkout fallback.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	LinkedVersion     string
	BuildInfoProvider BuildInfoProvider
	GitExecutor       GitExecutor
	WorkingDirectory  string
}

// Detector resolves the version from, in order: the link-time value, the module version, the VCS revision
// stamped into the binary, and finally git describe in the working directory.
type Detector struct {
	linkedVersion     string
	buildInfoProvider BuildInfoProvider
	gitExecutor       GitExecutor
	workingDirectory  string
}

// NewDetector constructs a Detector, filling unset dependencies from the running process.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	executor := dependencies.GitExecutor
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
		if creationError != nil {
			return nil, creationError
		}
		executor = shellExecutor
	}

	workingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(workingDirectory) == 0 {
		if currentDirectory, directoryError := os.Getwd(); directoryError == nil {
			workingDirectory = currentDirectory
		}
	}

	linkedVersion := strings.TrimSpace(dependencies.LinkedVersion)
	if len(linkedVersion) == 0 {
		linkedVersion = strings.TrimSpace(BuildVersion)
	}

	return &Detector{
		linkedVersion:     linkedVersion,
		buildInfoProvider: provider,
		gitExecutor:       executor,
		workingDirectory:  workingDirectory,
	}, nil
}

// Detect is a convenience wrapper around NewDetector and Version.
func Detect(executionContext context.Context, dependencies Dependencies) string {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return Unknown
	}
	return detector.Version(executionContext)
}

// Version returns the detected version, or Unknown.
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return Unknown
	}
	if len(detector.linkedVersion) > 0 {
		return detector.linkedVersion
	}

	buildInfo := detector.readBuildInfo()
	if moduleVersion := moduleVersion(buildInfo); len(moduleVersion) > 0 {
		return moduleVersion
	}
	if revisionVersion := stampedRevision(buildInfo); len(revisionVersion) > 0 {
		return revisionVersion
	}

	repositoryRoot := detector.repositoryRoot(executionContext)
	for _, arguments := range [][]string{
		{describeSubcommandConstant, tagsFlagConstant, exactMatchFlagConstant},
		{describeSubcommandConstant, tagsFlagConstant, longFlagConstant, dirtyFlagConstant},
	} {
		if described := detector.gitOutput(executionContext, repositoryRoot, arguments); len(described) > 0 {
			return described
		}
	}
	return Unknown
}

func (detector *Detector) readBuildInfo() *debug.BuildInfo {
	if detector.buildInfoProvider == nil {
		return nil
	}
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available {
		return nil
	}
	return buildInfo
}

func moduleVersion(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil {
		return ""
	}
	trimmed := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmed) == 0 || trimmed == develBuildVersionConstant || strings.EqualFold(trimmed, develVersionConstant) {
		return ""
	}
	return trimmed
}

func stampedRevision(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil {
		return ""
	}
	revision := ""
	modified := false
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case vcsRevisionSettingConstant:
			revision = strings.TrimSpace(setting.Value)
		case vcsModifiedSettingConstant:
			modified = setting.Value == modifiedSettingTrueValueConstant
		}
	}
	if len(revision) == 0 {
		return ""
	}
	if len(revision) > shortRevisionLengthConstant {
		revision = revision[:shortRevisionLengthConstant]
	}
	if modified {
		revision += modifiedRevisionSuffixConstant
	}
	return revisionVersionPrefixConstant + revision
}

func (detector *Detector) repositoryRoot(executionContext context.Context) string {
	if len(detector.workingDirectory) == 0 {
		return ""
	}
	topLevel := detector.gitOutput(executionContext, detector.workingDirectory, []string{revParseSubcommandConstant, showTopLevelFlagConstant})
	if len(topLevel) == 0 {
		return detector.workingDirectory
	}
	return topLevel
}

func (detector *Detector) gitOutput(executionContext context.Context, workingDirectory string, arguments []string) string {
	if detector.gitExecutor == nil {
		return ""
	}
	result, executionError := detector.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: map[string]string{gitTerminalPromptVariable: gitTerminalPromptDisabled},
	})
	if executionError != nil {
		return ""
	}
	return strings.TrimSpace(result.StandardOutput)
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
