package version_test

import (
	"context"
	"errors"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/version"
)

type stubBuildInfoProvider struct {
	info      *debug.BuildInfo
	available bool
}

func (provider stubBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	if !provider.available {
		return nil, false
	}
	return provider.info, true
}

type stubGitCommand struct {
	expectedArguments []string
	output            string
	executionError    error
}

type stubGitExecutor struct {
	testInstance *testing.T
	commands     []stubGitCommand
}

func (executor *stubGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.testInstance.Helper()
	require.NotEmpty(executor.testInstance, executor.commands, "unexpected git %v", details.Arguments)
	require.Equal(executor.testInstance, "0", details.EnvironmentVariables["GIT_TERMINAL_PROMPT"])

	command := executor.commands[0]
	executor.commands = executor.commands[1:]
	require.Equal(executor.testInstance, command.expectedArguments, details.Arguments)
	return execshell.ExecutionResult{StandardOutput: command.output}, command.executionError
}

func develBuild(settings ...debug.BuildSetting) stubBuildInfoProvider {
	return stubBuildInfoProvider{info: &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: settings}, available: true}
}

func TestVersionSources(testInstance *testing.T) {
	testCases := []struct {
		name          string
		linkedVersion string
		provider      stubBuildInfoProvider
		commands      []stubGitCommand
		expected      string
	}{
		{
			name:          "linked_version_wins",
			linkedVersion: "v1.4.0",
			provider:      stubBuildInfoProvider{info: &debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}}, available: true},
			expected:      "v1.4.0",
		},
		{
			name:     "module_version",
			provider: stubBuildInfoProvider{info: &debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}}, available: true},
			expected: "v1.2.3",
		},
		{
			name: "stamped_revision",
			provider: develBuild(
				debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			),
			expected: "devel-0123456789ab-dirty",
		},
		{
			name:     "exact_describe",
			provider: develBuild(),
			commands: []stubGitCommand{
				{expectedArguments: []string{"rev-parse", "--show-toplevel"}, output: "/workspace\n"},
				{expectedArguments: []string{"describe", "--tags", "--exact-match"}, output: "v0.9.0\n"},
			},
			expected: "v0.9.0",
		},
		{
			name:     "long_describe",
			provider: stubBuildInfoProvider{},
			commands: []stubGitCommand{
				{expectedArguments: []string{"rev-parse", "--show-toplevel"}, output: "/workspace"},
				{expectedArguments: []string{"describe", "--tags", "--exact-match"}, executionError: errors.New("no tag exactly matches")},
				{expectedArguments: []string{"describe", "--tags", "--long", "--dirty"}, output: "v0.9.0-1-gabcdef"},
			},
			expected: "v0.9.0-1-gabcdef",
		},
		{
			name:     "unknown",
			provider: develBuild(),
			commands: []stubGitCommand{
				{expectedArguments: []string{"rev-parse", "--show-toplevel"}, executionError: errors.New("not a git repository")},
				{expectedArguments: []string{"describe", "--tags", "--exact-match"}, executionError: errors.New("failure")},
				{expectedArguments: []string{"describe", "--tags", "--long", "--dirty"}, executionError: errors.New("failure")},
			},
			expected: version.Unknown,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitExecutor{testInstance: testInstance, commands: testCase.commands}
			detector, creationError := version.NewDetector(version.Dependencies{
				LinkedVersion:     testCase.linkedVersion,
				BuildInfoProvider: testCase.provider,
				GitExecutor:       executor,
				WorkingDirectory:  testInstance.TempDir(),
			})
			require.NoError(testInstance, creationError)

			require.Equal(testInstance, testCase.expected, detector.Version(context.Background()))
			require.Empty(testInstance, executor.commands)
		})
	}
}

func TestNilDetectorReportsUnknown(testInstance *testing.T) {
	var detector *version.Detector
	require.Equal(testInstance, version.Unknown, detector.Version(context.Background()))
}
