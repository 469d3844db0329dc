package cli_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/opentripplanner/custom-release/cmd/cli"
	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
	"github.com/opentripplanner/custom-release/internal/release/prompt"
	"github.com/opentripplanner/custom-release/internal/release/state"
)

const (
	testConfigurationSearchPathEnvironmentName = "CUSTOM_RELEASE_CONFIG_SEARCH_PATH"
	testConfigurationFileNameConstant          = "custom-release.yaml"
	testUserConfigurationDirectoryNameConstant = ".custom-release"
	testUserHomeEnvironmentNameConstant        = "HOME"
	testReleaseConfigurationContent            = "release_remote: entur\nrelease_branch: otp2_entur_develop\next_branches:\n  - otp2_ext_config\n  - \" \"\ninclude_prs_label: Entur Test\nser_ver_id_prefix: EN\n"
	testReleaseConfigurationJSONContent        = `{"release_remote": "entur", "release_branch": "otp2_entur_develop", "ext_branches": ["otp2_ext_config"], "include_prs_label": "Entur Test", "ser_ver_id_prefix": "EN"}`
	testErrorMarkerConstant                    = "ERROR"
)

type recordingExecutor struct {
	calls          int
	config         state.RunConfig
	options        state.RunOptions
	executionError error
}

func (executor *recordingExecutor) Execute(_ context.Context, config state.RunConfig, options state.RunOptions) error {
	executor.calls++
	executor.config = config
	executor.options = options
	return executor.executionError
}

type applicationHarness struct {
	workingDirectory string
	executor         *recordingExecutor
	environment      cli.ReleaseEnvironment
	factoryError     error
	output           *bytes.Buffer
	errorOutput      *bytes.Buffer
}

func newApplicationHarness(testInstance *testing.T) *applicationHarness {
	testInstance.Helper()
	workingDirectory := testInstance.TempDir()
	testInstance.Setenv(testConfigurationSearchPathEnvironmentName, strings.Join([]string{
		workingDirectory,
		filepath.Join(workingDirectory, "script"),
	}, string(os.PathListSeparator)))
	return &applicationHarness{
		workingDirectory: workingDirectory,
		executor:         &recordingExecutor{},
		output:           &bytes.Buffer{},
		errorOutput:      &bytes.Buffer{},
	}
}

func (harness *applicationHarness) run(arguments ...string) error {
	application := cli.NewApplication(
		cli.WithWorkingDirectory(harness.workingDirectory),
		cli.WithStreams(strings.NewReader(""), harness.output, harness.errorOutput),
		cli.WithTerminalDetector(func(io.Reader) bool { return false }),
		cli.WithVersionResolver(func(context.Context) string { return "v9.9.9" }),
		cli.WithReleaseExecutorFactory(func(environment cli.ReleaseEnvironment) (cli.ReleaseExecutor, error) {
			harness.environment = environment
			if harness.factoryError != nil {
				return nil, harness.factoryError
			}
			return harness.executor, nil
		}),
	)
	return application.ExecuteArguments(arguments)
}

func (harness *applicationHarness) writeFile(testInstance *testing.T, relativePath string, content string) {
	testInstance.Helper()
	filePath := filepath.Join(harness.workingDirectory, relativePath)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(filePath), 0o755))
	require.NoError(testInstance, os.WriteFile(filePath, []byte(content), 0o600))
}

func TestApplicationPassesOptionsToRelease(testInstance *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		expectedOptions state.RunOptions
	}{
		{
			name:            "base_revision",
			arguments:       []string{"otp/dev-2.x"},
			expectedOptions: state.RunOptions{BaseRevision: "otp/dev-2.x"},
		},
		{
			name:      "all_flags",
			arguments: []string{"--dry-run", "--ser-ver-id", "--skip-prs", "--summary", "v2.8.0"},
			expectedOptions: state.RunOptions{
				BaseRevision:        "v2.8.0",
				DryRun:              true,
				BumpSerializationID: true,
				SkipPullRequests:    true,
				PrintSummary:        true,
			},
		},
		{
			name:      "legacy_spellings",
			arguments: []string{"--dryRun", "--serVerId", "--skipPRs", "--printSummary", "v2.8.0"},
			expectedOptions: state.RunOptions{
				BaseRevision:        "v2.8.0",
				DryRun:              true,
				BumpSerializationID: true,
				SkipPullRequests:    true,
				PrintSummary:        true,
			},
		},
		{
			name:            "release_only",
			arguments:       []string{"--release"},
			expectedOptions: state.RunOptions{ReleaseOnly: true},
		},
		{
			name:            "debug",
			arguments:       []string{"--debug", "otp/dev-2.x"},
			expectedOptions: state.RunOptions{BaseRevision: "otp/dev-2.x", Debug: true},
		},
		{
			name:            "missing_base_revision_left_to_release",
			arguments:       nil,
			expectedOptions: state.RunOptions{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)

			require.NoError(testInstance, harness.run(testCase.arguments...))
			require.Equal(testInstance, 1, harness.executor.calls)
			require.Equal(testInstance, testCase.expectedOptions, harness.executor.options)
			require.Equal(testInstance, harness.workingDirectory, harness.environment.WorkingDirectory)
			require.NotNil(testInstance, harness.environment.Logger)
			require.Empty(testInstance, harness.errorOutput.String())
		})
	}
}

func TestApplicationLoadsReleaseConfiguration(testInstance *testing.T) {
	expectedConfiguration := state.RunConfig{
		UpstreamRemote:           "otp",
		ReleaseRemote:            "entur",
		ReleaseBranch:            "otp2_entur_develop",
		ExtensionBranches:        []string{"otp2_ext_config"},
		IncludePullRequestsLabel: "Entur Test",
		SerializationIDPrefix:    "EN",
		GitHubOwner:              "opentripplanner",
		GitHubRepository:         "OpenTripPlanner",
		DescriptorFile:           "pom.xml",
	}

	testCases := []struct {
		name         string
		relativePath string
		content      string
		arguments    []string
	}{
		{
			name:         "project_root_yaml",
			relativePath: testConfigurationFileNameConstant,
			content:      testReleaseConfigurationContent,
			arguments:    []string{"otp/dev-2.x"},
		},
		{
			name:         "script_directory_json",
			relativePath: filepath.Join("script", "custom-release.json"),
			content:      testReleaseConfigurationJSONContent,
			arguments:    []string{"otp/dev-2.x"},
		},
		{
			name:         "explicit_path",
			relativePath: filepath.Join("elsewhere", "release.yaml"),
			content:      testReleaseConfigurationContent,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)
			harness.writeFile(testInstance, testCase.relativePath, testCase.content)

			arguments := testCase.arguments
			if arguments == nil {
				arguments = []string{"--config", filepath.Join(harness.workingDirectory, testCase.relativePath), "otp/dev-2.x"}
			}

			require.NoError(testInstance, harness.run(arguments...))
			require.Equal(testInstance, 1, harness.executor.calls)
			if difference := cmp.Diff(expectedConfiguration, harness.executor.config); len(difference) > 0 {
				testInstance.Fatalf("unexpected release configuration (-want +got):\n%s", difference)
			}
		})
	}
}

func TestApplicationEnvironmentOverrides(testInstance *testing.T) {
	harness := newApplicationHarness(testInstance)
	harness.writeFile(testInstance, testConfigurationFileNameConstant, testReleaseConfigurationContent)
	testInstance.Setenv("CUSTOM_RELEASE_RELEASE_BRANCH", "otp2_other_develop")
	testInstance.Setenv("CUSTOM_RELEASE_EXT_BRANCHES", "otp2_ext_config,otp2_ext_extra")
	testInstance.Setenv("CUSTOM_RELEASE_LOG_LEVEL", "debug")

	require.NoError(testInstance, harness.run("otp/dev-2.x"))
	require.Equal(testInstance, "otp2_other_develop", harness.executor.config.ReleaseBranch)
	require.Equal(testInstance, []string{"otp2_ext_config", "otp2_ext_extra"}, harness.executor.config.ExtensionBranches)
	require.True(testInstance, harness.executor.options.Debug)
}

func TestApplicationReportsFailures(testInstance *testing.T) {
	releaseFailure := releaseerrors.WrapMessage(releaseerrors.OperationSetup, "arguments", releaseerrors.ErrArgumentsInvalid, "<base-revision> is required unless --release is given")

	testCases := []struct {
		name             string
		arguments        []string
		executionError   error
		factoryError     error
		expectedSentinel error
		expectedCalls    int
		expectedFragment string
	}{
		{
			name:             "release_error",
			executionError:   releaseFailure,
			expectedSentinel: releaseerrors.ErrArgumentsInvalid,
			expectedCalls:    1,
			expectedFragment: "<base-revision> is required",
		},
		{
			name:             "too_many_arguments",
			arguments:        []string{"otp/dev-2.x", "extra"},
			expectedFragment: "accepts at most 1 arg(s)",
		},
		{
			name:             "factory_error",
			arguments:        []string{"otp/dev-2.x"},
			factoryError:     errors.New("git not installed"),
			expectedFragment: "unable to prepare release: git not installed",
		},
		{
			name:             "invalid_resume_answer",
			arguments:        []string{"--resume=q", "otp/dev-2.x"},
			expectedSentinel: releaseerrors.ErrArgumentsInvalid,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)
			harness.executor.executionError = testCase.executionError
			harness.factoryError = testCase.factoryError

			executionError := harness.run(testCase.arguments...)
			require.Error(testInstance, executionError)
			if testCase.expectedSentinel != nil {
				require.ErrorIs(testInstance, executionError, testCase.expectedSentinel)
			}
			require.Equal(testInstance, testCase.expectedCalls, harness.executor.calls)
			require.Contains(testInstance, harness.errorOutput.String(), testErrorMarkerConstant)
			require.Contains(testInstance, harness.errorOutput.String(), testCase.expectedFragment)
		})
	}
}

func TestApplicationResolvesResumePrompter(testInstance *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		expectedChoice   prompt.Choice
		expectedSentinel error
	}{
		{
			name:           "preset_resume",
			arguments:      []string{"--resume", "y", "otp/dev-2.x"},
			expectedChoice: prompt.ChoiceResume,
		},
		{
			name:           "preset_discard",
			arguments:      []string{"--resume=D"},
			expectedChoice: prompt.ChoiceDiscard,
		},
		{
			name:             "no_terminal",
			arguments:        []string{"otp/dev-2.x"},
			expectedSentinel: releaseerrors.ErrPromptUnavailable,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)

			require.NoError(testInstance, harness.run(testCase.arguments...))
			require.NotNil(testInstance, harness.environment.Prompter)

			choice, askError := harness.environment.Prompter.AskResume("merge-pull-requests")
			if testCase.expectedSentinel != nil {
				require.ErrorIs(testInstance, askError, testCase.expectedSentinel)
				return
			}
			require.NoError(testInstance, askError)
			require.Equal(testInstance, testCase.expectedChoice, choice)
		})
	}
}

func TestApplicationPrintsVersion(testInstance *testing.T) {
	for _, arguments := range [][]string{{"version"}, {"--version"}} {
		testInstance.Run(arguments[0], func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)

			require.NoError(testInstance, harness.run(arguments...))
			require.Equal(testInstance, "custom-release version: v9.9.9\n", harness.output.String())
			require.Zero(testInstance, harness.executor.calls)
		})
	}
}

func TestApplicationConfigurationInitialization(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, embeddedConfigurationContent)

	testCases := []struct {
		name         string
		arguments    []string
		existing     bool
		expectError  bool
		userScope    bool
		expectedFile func(workingDirectory string, homeDirectory string) string
	}{
		{
			name:      "local_scope",
			arguments: []string{"--init"},
			expectedFile: func(workingDirectory string, _ string) string {
				return filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			},
		},
		{
			name:      "user_scope",
			arguments: []string{"--init", "user"},
			userScope: true,
			expectedFile: func(_ string, homeDirectory string) string {
				return filepath.Join(homeDirectory, testUserConfigurationDirectoryNameConstant, testConfigurationFileNameConstant)
			},
		},
		{
			name:        "existing_file_requires_force",
			arguments:   []string{"--init"},
			existing:    true,
			expectError: true,
			expectedFile: func(workingDirectory string, _ string) string {
				return filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			},
		},
		{
			name:      "force_overwrites",
			arguments: []string{"--init", "--force"},
			existing:  true,
			expectedFile: func(workingDirectory string, _ string) string {
				return filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newApplicationHarness(testInstance)
			homeDirectory := testInstance.TempDir()
			testInstance.Setenv(testUserHomeEnvironmentNameConstant, homeDirectory)
			expectedFile := testCase.expectedFile(harness.workingDirectory, homeDirectory)
			if testCase.existing {
				harness.writeFile(testInstance, testConfigurationFileNameConstant, "log_level: error\n")
			}

			executionError := harness.run(testCase.arguments...)
			require.Zero(testInstance, harness.executor.calls)

			fileContent, readError := os.ReadFile(expectedFile)
			require.NoError(testInstance, readError)
			if testCase.expectError {
				require.Error(testInstance, executionError)
				require.Contains(testInstance, harness.errorOutput.String(), "already exists")
				require.Equal(testInstance, "log_level: error\n", string(fileContent))
				return
			}
			require.NoError(testInstance, executionError)
			require.Equal(testInstance, embeddedConfigurationContent, fileContent)
			require.Contains(testInstance, harness.output.String(), expectedFile)
		})
	}
}

func TestEmbeddedDefaultConfigurationDescribesRelease(testInstance *testing.T) {
	configurationContent, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(testInstance, "yaml", configurationType)

	var releaseConfiguration state.RunConfig
	require.NoError(testInstance, yaml.Unmarshal(configurationContent, &releaseConfiguration))
	require.Equal(testInstance, "otp", releaseConfiguration.UpstreamRemote)
	require.Equal(testInstance, "opentripplanner", releaseConfiguration.GitHubOwner)
	require.Equal(testInstance, "OpenTripPlanner", releaseConfiguration.GitHubRepository)
	require.Equal(testInstance, "pom.xml", releaseConfiguration.DescriptorFile)
	require.Empty(testInstance, releaseConfiguration.ReleaseRemote)

	var keys map[string]any
	require.NoError(testInstance, yaml.Unmarshal(configurationContent, &keys))
	for _, key := range []string{"log_level", "log_format", "release_branch", "ext_branches", "include_prs_label", "ser_ver_id_prefix", "otp_production_url"} {
		require.Contains(testInstance, keys, key)
	}
}
