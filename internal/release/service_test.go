package release_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentripplanner/custom-release/internal/descriptor"
	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/githubapi"
	"github.com/opentripplanner/custom-release/internal/release"
	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
	"github.com/opentripplanner/custom-release/internal/release/prompt"
	"github.com/opentripplanner/custom-release/internal/release/report"
	"github.com/opentripplanner/custom-release/internal/release/state"
)

const (
	baseRevisionConstant   = "otp/dev-2.x"
	baseHashConstant       = "1111111111111111111111111111111111111111"
	latestHashConstant     = "2222222222222222222222222222222222222222"
	headHashConstant       = "3333333333333333333333333333333333333333"
	pullRequestHeadHash    = "4444444444444444444444444444444444444444"
	latestTagConstant      = "v2.8.0-entur-2"
	nextTagConstant        = "v2.8.0-entur-3"
	previousTagConstant    = "v2.8.0-entur-1"
	releaseBranchConstant  = "otp2_entur_develop"
	productionResponseBody = `{"version":"2.8.0-entur-1","otpSerializationVersionId":"EN-0004"}`
)

func pomContent(version string, serializationID string) string {
	return fmt.Sprintf("<project>\n  <version>%s</version>\n  <properties>\n    <%s>%s</%s>\n  </properties>\n</project>\n",
		version, descriptor.SerializationIDProperty, serializationID, descriptor.SerializationIDProperty)
}

type fakeRepository struct {
	calls            []string
	descriptors      map[string]string
	tags             []string
	missingRevisions map[string]bool
	hashes           map[string]string
	commits          map[string][]string
	includedHeads    map[string]bool
	ancestorErrors   map[string]error
	dirty            bool
	fetchAllError    error
	mergeErrors      map[string]error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		descriptors: map[string]string{
			baseRevisionConstant: pomContent("2.8.0-SNAPSHOT", "214"),
			baseHashConstant:     pomContent("2.8.0-SNAPSHOT", "214"),
			latestTagConstant:    pomContent("2.8.0-entur-2", "EN-0005"),
			previousTagConstant:  pomContent("2.8.0-entur-1", "EN-0004"),
			latestHashConstant:   pomContent("2.8.0-entur-2", "EN-0005"),
			"upstream-213":       pomContent("2.8.0-SNAPSHOT", "213"),
			"HEAD":               pomContent("2.8.0-entur-2", "EN-0005"),
			headHashConstant:     pomContent("2.8.0-entur-2", "EN-0005"),
		},
		tags:             []string{latestTagConstant, previousTagConstant, "v2.7.0-entur-9"},
		missingRevisions: map[string]bool{},
		hashes: map[string]string{
			baseRevisionConstant: baseHashConstant,
			latestTagConstant:    latestHashConstant,
			"HEAD":               headHashConstant,
		},
		commits: map[string][]string{
			latestTagConstant: {latestHashConstant, "upstream-213"},
			baseHashConstant:  {baseHashConstant},
		},
		includedHeads:  map[string]bool{},
		ancestorErrors: map[string]error{},
		mergeErrors:    map[string]error{},
	}
}

func (repository *fakeRepository) record(format string, arguments ...any) {
	repository.calls = append(repository.calls, fmt.Sprintf(format, arguments...))
}

func (repository *fakeRepository) count(prefix string) int {
	total := 0
	for _, call := range repository.calls {
		if strings.HasPrefix(call, prefix) {
			total++
		}
	}
	return total
}

func (repository *fakeRepository) Version(context.Context) (string, error) {
	return "git version 2.47.0", nil
}

func (repository *fakeRepository) FetchAll(context.Context) error {
	repository.record("fetch --all")
	return repository.fetchAllError
}

func (repository *fakeRepository) Fetch(_ context.Context, remoteName string, refspec string) error {
	repository.record("fetch %s %s", remoteName, refspec)
	return nil
}

func (repository *fakeRepository) ResetBranch(_ context.Context, branchName string, startPoint string) error {
	repository.record("checkout -B %s %s", branchName, startPoint)
	return nil
}

func (repository *fakeRepository) ResetHard(_ context.Context, revision string) error {
	repository.record("reset --hard %s", revision)
	return nil
}

func (repository *fakeRepository) Merge(_ context.Context, revision string) error {
	repository.record("merge %s", revision)
	return repository.mergeErrors[revision]
}

func (repository *fakeRepository) MergeOurs(_ context.Context, revision string, message string) error {
	repository.record("merge -s ours %s -m %s", revision, message)
	return nil
}

func (repository *fakeRepository) DeleteBranch(_ context.Context, branchName string, _ bool) error {
	repository.record("branch -D %s", branchName)
	return nil
}

func (repository *fakeRepository) ListTags(context.Context) ([]string, error) {
	return repository.tags, nil
}

func (repository *fakeRepository) ShowFile(_ context.Context, revision string, filePath string) (string, error) {
	content, found := repository.descriptors[revision]
	if !found {
		return "", fmt.Errorf("fatal: invalid object name %s:%s", revision, filePath)
	}
	return content, nil
}

func (repository *fakeRepository) ResolveCommitHash(_ context.Context, reference string) (string, error) {
	hash, found := repository.hashes[reference]
	if !found {
		return "", fmt.Errorf("unknown revision %s", reference)
	}
	return hash, nil
}

func (repository *fakeRepository) RevisionExists(_ context.Context, revision string) (bool, error) {
	return !repository.missingRevisions[revision], nil
}

func (repository *fakeRepository) HasLocalChanges(context.Context) (bool, error) {
	return repository.dirty, nil
}

func (repository *fakeRepository) IsAncestor(_ context.Context, ancestor string, _ string) (bool, error) {
	if ancestorError, found := repository.ancestorErrors[ancestor]; found {
		return false, ancestorError
	}
	return repository.includedHeads[ancestor], nil
}

func (repository *fakeRepository) RecentCommits(_ context.Context, revision string, _ int) ([]string, error) {
	return repository.commits[revision], nil
}

func (repository *fakeRepository) AddAll(context.Context) error {
	repository.record("add .")
	return nil
}

func (repository *fakeRepository) Commit(_ context.Context, message string) error {
	repository.record("commit %s", message)
	return nil
}

func (repository *fakeRepository) CreateAnnotatedTag(_ context.Context, tagName string, message string) error {
	repository.record("tag %s %s", tagName, message)
	return nil
}

func (repository *fakeRepository) ForcePush(_ context.Context, remoteName string, reference string) error {
	repository.record("push -f %s %s", remoteName, reference)
	return nil
}

type fakeBuildTool struct {
	calls      []string
	testErrors []error
}

func (buildTool *fakeBuildTool) Version(context.Context) (string, error) {
	buildTool.calls = append(buildTool.calls, "version")
	return "Apache Maven 3.9.9", nil
}

func (buildTool *fakeBuildTool) SetVersion(_ context.Context, version string) error {
	buildTool.calls = append(buildTool.calls, "set-version "+version)
	return nil
}

func (buildTool *fakeBuildTool) Test(context.Context) error {
	buildTool.calls = append(buildTool.calls, "test")
	if len(buildTool.testErrors) == 0 {
		return nil
	}
	testError := buildTool.testErrors[0]
	buildTool.testErrors = buildTool.testErrors[1:]
	return testError
}

type fakePullRequestSource struct {
	pullRequests []githubapi.PullRequest
	err          error
	queries      []string
}

func (source *fakePullRequestSource) ListLabeledPullRequests(_ context.Context, owner string, repository string, label string) ([]githubapi.PullRequest, error) {
	source.queries = append(source.queries, owner+"/"+repository+":"+label)
	return source.pullRequests, source.err
}

type fakeScripts struct {
	curlOutput  string
	curlCalls   []execshell.CommandDetails
	scriptCalls []string
}

func (scripts *fakeScripts) ExecuteCurl(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	scripts.curlCalls = append(scripts.curlCalls, details)
	return execshell.ExecutionResult{StandardOutput: scripts.curlOutput}, nil
}

func (scripts *fakeScripts) ExecuteScript(_ context.Context, scriptPath string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	scripts.scriptCalls = append(scripts.scriptCalls, filepath.Base(scriptPath)+" "+strings.Join(details.Arguments, " "))
	if len(details.Arguments) >= 3 {
		return execshell.ExecutionResult{StandardOutput: fmt.Sprintf("## %s\n%s..%s\n", details.Arguments[2], details.Arguments[0], details.Arguments[1])}, nil
	}
	return execshell.ExecutionResult{}, nil
}

type releaseFixture struct {
	directory    string
	repository   *fakeRepository
	buildTool    *fakeBuildTool
	pullRequests *fakePullRequestSource
	scripts      *fakeScripts
	output       *bytes.Buffer
	config       state.RunConfig
	options      state.RunOptions
}

func newReleaseFixture(testInstance *testing.T) *releaseFixture {
	testInstance.Helper()
	directory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(directory, "LICENSE"), []byte("LGPL"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(directory, descriptor.FileName), []byte(pomContent("2.8.0-SNAPSHOT", "214")), 0o644))

	return &releaseFixture{
		directory:  directory,
		repository: newFakeRepository(),
		buildTool:  &fakeBuildTool{},
		pullRequests: &fakePullRequestSource{pullRequests: []githubapi.PullRequest{
			{Number: 42, Title: "Fix stop linking", HeadCommitHash: pullRequestHeadHash, Labels: []string{"Entur Test"}},
		}},
		scripts: &fakeScripts{},
		output:  &bytes.Buffer{},
		config: state.RunConfig{
			UpstreamRemote:           "otp",
			ReleaseRemote:            "entur",
			ReleaseBranch:            releaseBranchConstant,
			ExtensionBranches:        []string{"otp2_ext_config"},
			IncludePullRequestsLabel: "Entur Test",
			SerializationIDPrefix:    "EN",
			GitHubOwner:              "opentripplanner",
			GitHubRepository:         "OpenTripPlanner",
		},
		options: state.RunOptions{BaseRevision: baseRevisionConstant},
	}
}

func (fixture *releaseFixture) service(testInstance *testing.T, prompter prompt.ResumePrompter) *release.Service {
	testInstance.Helper()
	if prompter == nil {
		resolved, resolveError := prompt.Resolve("", strings.NewReader(""), io.Discard, func(io.Reader) bool { return false })
		require.NoError(testInstance, resolveError)
		prompter = resolved
	}
	service, serviceError := release.NewService(release.ServiceDependencies{
		Repository:       fixture.repository,
		BuildTool:        fixture.buildTool,
		PullRequests:     fixture.pullRequests,
		Scripts:          fixture.scripts,
		Reporter:         report.NewReporter(fixture.output),
		Prompter:         prompter,
		Clock:            func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
		WorkingDirectory: fixture.directory,
	})
	require.NoError(testInstance, serviceError)
	return service
}

func (fixture *releaseFixture) stateFileExists(testInstance *testing.T) bool {
	testInstance.Helper()
	exists, existsError := state.NewFileStore(filepath.Join(fixture.directory, state.DefaultFileName)).Exists()
	require.NoError(testInstance, existsError)
	return exists
}

func (fixture *releaseFixture) descriptorContent(testInstance *testing.T) string {
	testInstance.Helper()
	content, readError := os.ReadFile(filepath.Join(fixture.directory, descriptor.FileName))
	require.NoError(testInstance, readError)
	return string(content)
}

func fixedPrompter(testInstance *testing.T, answer string) prompt.ResumePrompter {
	testInstance.Helper()
	prompter, prompterError := prompt.NewFixedResumePrompter(answer)
	require.NoError(testInstance, prompterError)
	return prompter
}

func TestExecuteReleasesFromBaseRevision(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Equal(testInstance, []string{
		"fetch --all",
		"fetch entur otp2_entur_develop",
		"checkout -B otp2_entur_develop entur/otp2_entur_develop",
		"reset --hard otp/dev-2.x",
		"fetch otp pull/42/head:pull-request-42",
		"merge pull-request-42",
		"branch -D pull-request-42",
		"fetch entur otp2_ext_config",
		"merge entur/otp2_ext_config",
		"merge -s ours entur/otp2_entur_develop -m Merge old release into the release branch - NO CHANGES COPIED OVER",
		"add .",
		"commit Version 2.8.0-entur-3 (EN-0006)",
		"tag v2.8.0-entur-3 Version 2.8.0-entur-3 (EN-0006)",
		"push -f entur otp2_entur_develop",
		"push -f entur v2.8.0-entur-3",
	}, fixture.repository.calls)
	require.Equal(testInstance, []string{"version", "set-version 2.8.0-entur-3", "test"}, fixture.buildTool.calls)
	require.Equal(testInstance, []string{"opentripplanner/OpenTripPlanner:Entur Test"}, fixture.pullRequests.queries)

	serializationID, readError := descriptor.ReadSerializationID(fixture.descriptorContent(testInstance))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "EN-0006", serializationID)

	require.False(testInstance, fixture.stateFileExists(testInstance))
	output := fixture.output.String()
	require.Contains(testInstance, output, "Merge in PR Fix stop linking #42")
	require.Contains(testInstance, output, "WARNING Script 'script/custom-release-extension' not found!")
	require.Contains(testInstance, output, "upstream ser.ver.id 213 and the base upstream id 214 differ")
	require.Contains(testInstance, output, "RELEASE SUCCESS!")
	_, statError := os.Stat(filepath.Join(fixture.directory, release.SummaryFileName))
	require.True(testInstance, os.IsNotExist(statError))
}

func TestExecuteDryRunSkipsMutations(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.options.DryRun = true
	extensionScript := filepath.Join(fixture.directory, release.ExtensionScriptPath)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(extensionScript), 0o755))
	require.NoError(testInstance, os.WriteFile(extensionScript, []byte("#!/bin/sh\n"), 0o755))
	original := fixture.descriptorContent(testInstance)

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Equal(testInstance, []string{
		"fetch --all",
		"fetch entur otp2_entur_develop",
		"fetch entur otp2_ext_config",
	}, fixture.repository.calls)
	require.Equal(testInstance, []string{"version", "test"}, fixture.buildTool.calls)
	require.Equal(testInstance, original, fixture.descriptorContent(testInstance))
	require.False(testInstance, fixture.stateFileExists(testInstance))

	output := fixture.output.String()
	require.Contains(testInstance, output, "=> git push -f entur v2.8.0-entur-3  (dry run) SKIPPED")
	require.Contains(testInstance, output, "=> git merge pull-request-42  (dry run) SKIPPED")
	require.Contains(testInstance, output, "=> script/custom-release-extension  (dry run) SKIPPED")
	require.NotContains(testInstance, strings.Join(fixture.scripts.scriptCalls, "\n"), "custom-release-extension")
	require.Contains(testInstance, output, "RELEASE SUCCESS!")
}

func TestExecuteResumesAfterFailedStep(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.buildTool.testErrors = []error{errors.New("3 tests failed")}

	firstError := fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options)
	require.ErrorIs(testInstance, firstError, releaseerrors.ErrStepFailed)
	require.ErrorContains(testInstance, firstError, "3 tests failed")
	require.True(testInstance, fixture.stateFileExists(testInstance))

	saved, found, loadError := state.NewFileStore(filepath.Join(fixture.directory, state.DefaultFileName)).Load()
	require.NoError(testInstance, loadError)
	require.True(testInstance, found)
	require.Equal(testInstance, release.StepRunTests, saved.ResumePoint)
	require.False(testInstance, saved.ResumePointCompleted)
	require.Equal(testInstance, "EN-0006", saved.State.NextSerializationID)
	require.Len(testInstance, saved.PullRequests, 1)

	require.NoError(testInstance, fixture.service(testInstance, fixedPrompter(testInstance, "y")).Execute(context.Background(), fixture.config, fixture.options))

	require.Equal(testInstance, 1, fixture.repository.count("fetch --all"))
	require.Equal(testInstance, 1, fixture.repository.count("checkout -B"))
	require.Equal(testInstance, 1, fixture.repository.count("merge pull-request-42"))
	require.Equal(testInstance, 1, fixture.repository.count("commit "))
	require.Equal(testInstance, []string{"version", "set-version 2.8.0-entur-3", "test", "test"}, fixture.buildTool.calls)
	require.False(testInstance, fixture.stateFileExists(testInstance))
	require.Contains(testInstance, fixture.output.String(), "Set Maven project version ...  (SKIP STEP)")
}

func TestExecuteResumeAnswers(testInstance *testing.T) {
	testCases := []struct {
		name            string
		prompter        func(*testing.T) prompt.ResumePrompter
		expectedError   error
		expectStateFile bool
	}{
		{
			name:            "exit_keeps_state",
			prompter:        func(testInstance *testing.T) prompt.ResumePrompter { return fixedPrompter(testInstance, "x") },
			expectStateFile: true,
		},
		{
			name:     "discard_deletes_state",
			prompter: func(testInstance *testing.T) prompt.ResumePrompter { return fixedPrompter(testInstance, "d") },
		},
		{
			name:            "no_terminal_fails",
			prompter:        func(*testing.T) prompt.ResumePrompter { return nil },
			expectedError:   releaseerrors.ErrPromptUnavailable,
			expectStateFile: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newReleaseFixture(testInstance)
			record := state.NewRecord(fixture.config, fixture.options, time.Now())
			record.ResumePoint = release.StepRunTests
			require.NoError(testInstance, state.NewFileStore(filepath.Join(fixture.directory, state.DefaultFileName)).Save(record))

			executeError := fixture.service(testInstance, testCase.prompter(testInstance)).Execute(context.Background(), fixture.config, fixture.options)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, executeError, testCase.expectedError)
			} else {
				require.NoError(testInstance, executeError)
			}
			require.Equal(testInstance, testCase.expectStateFile, fixture.stateFileExists(testInstance))
			require.Empty(testInstance, fixture.repository.calls)
			require.Empty(testInstance, fixture.buildTool.calls)
		})
	}
}

func TestExecuteUnreadableStateFile(testInstance *testing.T) {
	testCases := []struct {
		name            string
		prompter        func(*testing.T) prompt.ResumePrompter
		expectError     bool
		expectStateFile bool
	}{
		{
			name:     "discard_deletes_state",
			prompter: func(testInstance *testing.T) prompt.ResumePrompter { return fixedPrompter(testInstance, "d") },
		},
		{
			name:            "exit_keeps_state",
			prompter:        func(testInstance *testing.T) prompt.ResumePrompter { return fixedPrompter(testInstance, "x") },
			expectStateFile: true,
		},
		{
			name:            "resume_is_refused",
			prompter:        func(testInstance *testing.T) prompt.ResumePrompter { return fixedPrompter(testInstance, "y") },
			expectError:     true,
			expectStateFile: true,
		},
		{
			name:            "no_terminal_names_the_file",
			prompter:        func(*testing.T) prompt.ResumePrompter { return nil },
			expectError:     true,
			expectStateFile: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newReleaseFixture(testInstance)
			stateFile := filepath.Join(fixture.directory, state.DefaultFileName)
			require.NoError(testInstance, os.WriteFile(stateFile, []byte(`{"schema_version":0,"legacy_step":"run-tests"}`), 0o644))

			executeError := fixture.service(testInstance, testCase.prompter(testInstance)).Execute(context.Background(), fixture.config, fixture.options)
			if testCase.expectError {
				require.ErrorIs(testInstance, executeError, releaseerrors.ErrStateUnavailable)
				require.ErrorIs(testInstance, executeError, state.ErrSchemaMismatch)
				require.ErrorContains(testInstance, executeError, "delete "+stateFile)
			} else {
				require.NoError(testInstance, executeError)
			}
			require.Equal(testInstance, testCase.expectStateFile, fixture.stateFileExists(testInstance))
			require.Contains(testInstance, fixture.output.String(), "cannot be resumed")
			require.Empty(testInstance, fixture.repository.calls)
		})
	}
}

func TestExecuteSetupFailuresLeaveNoState(testInstance *testing.T) {
	testCases := []struct {
		name          string
		prepare       func(*releaseFixture)
		expectedError error
	}{
		{
			name:          "not_project_root",
			prepare:       func(fixture *releaseFixture) { _ = os.Remove(filepath.Join(fixture.directory, "LICENSE")) },
			expectedError: releaseerrors.ErrNotProjectRoot,
		},
		{
			name:          "fetch_failure",
			prepare:       func(fixture *releaseFixture) { fixture.repository.fetchAllError = errors.New("network down") },
			expectedError: releaseerrors.ErrFetchFailed,
		},
		{
			name:          "missing_base_revision",
			prepare:       func(fixture *releaseFixture) { fixture.repository.missingRevisions[baseRevisionConstant] = true },
			expectedError: releaseerrors.ErrRevisionNotFound,
		},
		{
			name:          "missing_release_branch",
			prepare:       func(fixture *releaseFixture) { fixture.repository.missingRevisions["entur/"+releaseBranchConstant] = true },
			expectedError: releaseerrors.ErrRevisionNotFound,
		},
		{
			name:          "local_changes",
			prepare:       func(fixture *releaseFixture) { fixture.repository.dirty = true },
			expectedError: releaseerrors.ErrLocalChanges,
		},
		{
			name: "unrecognized_project_version",
			prepare: func(fixture *releaseFixture) {
				fixture.repository.descriptors[baseRevisionConstant] = pomContent("2.8.0-rc1", "214")
			},
			expectedError: releaseerrors.ErrVersionNotFound,
		},
		{
			name:          "pull_request_lookup",
			prepare:       func(fixture *releaseFixture) { fixture.pullRequests.err = errors.New("bad credentials") },
			expectedError: releaseerrors.ErrPullRequestLookupFailed,
		},
		{
			name:          "invalid_configuration",
			prepare:       func(fixture *releaseFixture) { fixture.config.SerializationIDPrefix = "ENT" },
			expectedError: releaseerrors.ErrConfigurationInvalid,
		},
		{
			name:          "base_revision_required",
			prepare:       func(fixture *releaseFixture) { fixture.options.BaseRevision = "" },
			expectedError: releaseerrors.ErrArgumentsInvalid,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newReleaseFixture(testInstance)
			testCase.prepare(fixture)

			executeError := fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options)
			require.ErrorIs(testInstance, executeError, testCase.expectedError)
			require.False(testInstance, fixture.stateFileExists(testInstance))
			require.LessOrEqual(testInstance, len(fixture.buildTool.calls), 1)
			require.Zero(testInstance, fixture.repository.count("add ."))
		})
	}
}

func TestExecuteBumpsForUnreleasedLabeledPullRequest(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.pullRequests.pullRequests = []githubapi.PullRequest{
		{Number: 7, Title: "New transfer model", HeadCommitHash: pullRequestHeadHash, Labels: []string{"Entur Test", githubapi.BumpSerializationIDLabel}},
	}
	fixture.repository.commits = map[string][]string{}

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Contains(testInstance, fixture.repository.calls, "commit Version 2.8.0-entur-3 (EN-0006)")
	require.Contains(testInstance, fixture.output.String(), "Bumping ser.ver.id. (New transfer model #7)")
	require.Contains(testInstance, fixture.output.String(), "ser_ver_id_decision: pull-request-label")
}

func TestExecuteAncestorCheckFailures(testInstance *testing.T) {
	testCases := []struct {
		name          string
		ancestorError error
		expectBump    bool
	}{
		{
			name: "commit_missing_locally",
			ancestorError: execshell.CommandFailedError{
				Command: execshell.ShellCommand{Name: execshell.CommandGit},
				Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: Not a valid commit name " + pullRequestHeadHash},
			},
			expectBump: true,
		},
		{
			name:          "git_not_runnable",
			ancestorError: errors.New("fork/exec git: permission denied"),
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newReleaseFixture(testInstance)
			fixture.pullRequests.pullRequests = []githubapi.PullRequest{
				{Number: 7, Title: "New transfer model", HeadCommitHash: pullRequestHeadHash, Labels: []string{"Entur Test", githubapi.BumpSerializationIDLabel}},
			}
			fixture.repository.ancestorErrors[pullRequestHeadHash] = testCase.ancestorError

			executionError := fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options)
			if !testCase.expectBump {
				require.ErrorIs(testInstance, executionError, releaseerrors.ErrRevisionNotFound)
				require.False(testInstance, fixture.stateFileExists(testInstance))
				return
			}
			require.NoError(testInstance, executionError)
			require.Contains(testInstance, fixture.output.String(), "Bumping ser.ver.id. (New transfer model #7)")
			require.Contains(testInstance, fixture.repository.calls, "commit Version 2.8.0-entur-3 (EN-0006)")
		})
	}
}

func TestExecuteCarriesSerializationIDForward(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.repository.descriptors[baseHashConstant] = pomContent("2.8.0-SNAPSHOT", "213")
	fixture.options.SkipPullRequests = true

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Contains(testInstance, fixture.repository.calls, "commit Version 2.8.0-entur-3 (EN-0005)")
	require.Empty(testInstance, fixture.pullRequests.queries)
	require.Contains(testInstance, fixture.output.String(), "Same serialization.version.id set: EN-0005")
}

func TestExecuteReleaseOnly(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.options = state.RunOptions{ReleaseOnly: true, SkipPullRequests: true}

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Equal(testInstance, []string{
		"fetch --all",
		"merge -s ours entur/otp2_entur_develop -m Merge old release into the release branch - NO CHANGES COPIED OVER",
		"add .",
		"commit Version 2.8.0-entur-3 (EN-0005)",
		"tag v2.8.0-entur-3 Version 2.8.0-entur-3 (EN-0005)",
		"push -f entur otp2_entur_develop",
		"push -f entur v2.8.0-entur-3",
	}, fixture.repository.calls)
	require.Empty(testInstance, fixture.scripts.scriptCalls)
}

func TestExecuteWritesSummary(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	fixture.options.PrintSummary = true
	fixture.config.ProductionURL = "https://api.entur.io/journey-planner/v3/otp-version"
	fixture.scripts.curlOutput = productionResponseBody
	require.NoError(testInstance, os.MkdirAll(filepath.Join(fixture.directory, "script"), 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(fixture.directory, release.ChangelogScriptPath), []byte("#!/usr/bin/env python3\n"), 0o755))

	require.NoError(testInstance, fixture.service(testInstance, nil).Execute(context.Background(), fixture.config, fixture.options))

	require.Len(testInstance, fixture.scripts.curlCalls, 1)
	require.Equal(testInstance, []string{
		"changelog-diff.py v2.8.0-entur-1 v2.8.0-entur-2 Changelog production 🦋",
		"changelog-diff.py v2.8.0-entur-2 v2.8.0-entur-3 Changelog previous release 🐛",
	}, fixture.scripts.scriptCalls)

	summary, readError := os.ReadFile(filepath.Join(fixture.directory, release.SummaryFileName))
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(summary), "  - Production version/git tag: `2.8.0-entur-1`")
	require.Contains(testInstance, string(summary), "  - Prod serialization version: `EN-0004`")
	require.Contains(testInstance, string(summary), "  -  [Fix stop linking #42](https://github.com/opentripplanner/OpenTripPlanner/pull/42) [`Entur Test`]")
	require.Contains(testInstance, string(summary), "v2.8.0-entur-2..v2.8.0-entur-3")
}

func TestValidateOptions(testInstance *testing.T) {
	testCases := []struct {
		name        string
		options     state.RunOptions
		expectError bool
	}{
		{name: "base_revision", options: state.RunOptions{BaseRevision: baseRevisionConstant}},
		{name: "release_only", options: state.RunOptions{ReleaseOnly: true}},
		{name: "missing_base_revision", options: state.RunOptions{}, expectError: true},
		{name: "base_revision_with_release_only", options: state.RunOptions{ReleaseOnly: true, BaseRevision: "HEAD"}, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			validationError := release.ValidateOptions(testCase.options)
			if testCase.expectError {
				require.ErrorIs(testInstance, validationError, releaseerrors.ErrArgumentsInvalid)
				return
			}
			require.NoError(testInstance, validationError)
		})
	}
}

func TestParseProductionVersion(testInstance *testing.T) {
	testCases := []struct {
		name              string
		body              string
		expectedVersion   string
		expectedSerialization string
	}{
		{name: "both_values", body: productionResponseBody, expectedVersion: "2.8.0-entur-1", expectedSerialization: "EN-0004"},
		{name: "version_only", body: `{"version":"2.7.0-entur-160"}`, expectedVersion: "2.7.0-entur-160"},
		{name: "unrelated", body: "<html>maintenance</html>"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			version, serializationID := release.ParseProductionVersion(testCase.body)
			require.Equal(testInstance, testCase.expectedVersion, version)
			require.Equal(testInstance, testCase.expectedSerialization, serializationID)
		})
	}
}

func TestBuildSummaryWithoutPullRequests(testInstance *testing.T) {
	record := state.NewRecord(state.RunConfig{IncludePullRequestsLabel: "Entur Test"}, state.RunOptions{}, time.Now())
	record.State = state.RunState{NextVersion: "2.8.0-entur-3", NextSerializationID: "EN-0006", LatestSerializationID: "EN-0005"}

	summary := release.BuildSummary(record, []release.Changelog{{Title: "empty", Content: "  \n"}})

	require.True(testInstance, strings.HasPrefix(summary, "# OTP Release Summary\n\n## Version\n\n"))
	require.Contains(testInstance, summary, "  - New version/git tag: `2.8.0-entur-3`\n")
	require.Contains(testInstance, summary, "  - Old serialization version: `EN-0005`\n")
	require.NotContains(testInstance, summary, "## Pull Requests")
}

func TestNewServiceRequiresDependencies(testInstance *testing.T) {
	fixture := newReleaseFixture(testInstance)
	complete := release.ServiceDependencies{
		Repository:       fixture.repository,
		BuildTool:        fixture.buildTool,
		PullRequests:     fixture.pullRequests,
		Scripts:          fixture.scripts,
		Reporter:         report.NewReporter(io.Discard),
		Prompter:         fixedPrompter(testInstance, "y"),
		WorkingDirectory: fixture.directory,
	}

	testCases := []struct {
		name          string
		mutate        func(*release.ServiceDependencies)
		expectedError error
	}{
		{name: "repository", mutate: func(dependencies *release.ServiceDependencies) { dependencies.Repository = nil }, expectedError: release.ErrRepositoryNotConfigured},
		{name: "build_tool", mutate: func(dependencies *release.ServiceDependencies) { dependencies.BuildTool = nil }, expectedError: release.ErrBuildToolNotConfigured},
		{name: "pull_requests", mutate: func(dependencies *release.ServiceDependencies) { dependencies.PullRequests = nil }, expectedError: release.ErrPullRequestSourceNotConfigured},
		{name: "scripts", mutate: func(dependencies *release.ServiceDependencies) { dependencies.Scripts = nil }, expectedError: release.ErrScriptRunnerNotConfigured},
		{name: "reporter", mutate: func(dependencies *release.ServiceDependencies) { dependencies.Reporter = nil }, expectedError: release.ErrReporterNotConfigured},
		{name: "prompter", mutate: func(dependencies *release.ServiceDependencies) { dependencies.Prompter = nil }, expectedError: release.ErrPrompterNotConfigured},
		{name: "working_directory", mutate: func(dependencies *release.ServiceDependencies) { dependencies.WorkingDirectory = " " }, expectedError: release.ErrWorkingDirectoryNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			dependencies := complete
			testCase.mutate(&dependencies)
			_, serviceError := release.NewService(dependencies)
			require.ErrorIs(testInstance, serviceError, testCase.expectedError)
		})
	}

	_, serviceError := release.NewService(complete)
	require.NoError(testInstance, serviceError)
}
