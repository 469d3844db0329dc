package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/opentripplanner/custom-release/internal/descriptor"
	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/githubapi"
	releaseerrors "github.com/opentripplanner/custom-release/internal/release/errors"
	"github.com/opentripplanner/custom-release/internal/release/state"
	"github.com/opentripplanner/custom-release/internal/release/versioning"
)

const (
	projectRootMarkerFileConstant       = "LICENSE"
	serializationTagScanLimitConstant   = 60
	curlSilentFlagConstant              = "--silent"
	curlShowErrorFlagConstant           = "--show-error"
	curlFailFlagConstant                = "--fail"
	notProjectRootMessageConstant       = "Run the release from the project root directory."
	baseRevisionNotFoundMessage         = "Base revision not found!"
	releaseBranchNotFoundMessage        = "Release branch not found!"
	localChangesMessageConstant         = "There are local changes!"
	fetchFailedMessageConstant          = "Git fetch all remotes failed!"
	verifyToolsMessageConstant          = "Verify git and maven are installed ..."
	verifyReleaseBranchMessage          = "Verify release branch/commit exist ..."
	verifyBaseAndBranchMessage          = "Verify base revision and release branch/commit exist ..."
	verifyLocalChangesMessage           = "Verify no local changes exist ..."
	resolveVersionMessageConstant       = "Resolve version number ..."
	resolveNextVersionMessageConstant   = "Resolve next version number ..."
	resolveLatestIDMessageConstant      = "Resolve latest ser.ver.id ..."
	skipPullRequestsMessageConstant     = "Skip merging in GitHub PRs."
	readPullRequestsMessageConstant     = "Get PRs to include and their labels from GitHub ..."
	checkPullRequestsTemplate           = "Check if one of the PRs labeled with %s does not exist in the latest release. If so, bump the ser.ver.id ..."
	pullRequestBumpTemplate             = "  - The top commit does not exist in the latest release. Bumping ser.ver.id. (%s)"
	noPreviousReleaseMessageConstant    = "  - No previous release found, nothing to compare with."
	resolveNextIDMessageConstant        = "Resolve the next serialization version id ..."
	upstreamChangedTemplate             = "  - The latest upstream ser.ver.id %s and the base upstream id %s differ. The ser.ver.id is bumped."
	productionURLMissingMessageConstant = "The 'otp_production_url' config parameter is not set. Summary diff is skipped."
	productionLookupMessageTemplate     = "Resolve production version from %s ..."
	setupResolvedMessageConstant        = "release setup resolved"
	toolVersionMessageConstant          = "tool version"
	toolFieldNameConstant               = "tool"
	versionFieldNameConstant            = "version"
	nextVersionFieldNameConstant        = "next_version"
	nextIDFieldNameConstant             = "next_ser_ver_id"
	decisionFieldNameConstant           = "decision"
	pullRequestCountFieldNameConstant   = "pull_requests"
	pullRequestFieldNameConstant        = "pull_request"
	ancestorCheckFailedMessageConstant  = "ancestor check failed, treating the commit as unreleased"
)

var (
	productionVersionPattern         = regexp.MustCompile(`"version":"([-\w.]+)"`)
	productionSerializationIDPattern = regexp.MustCompile(`"otpSerializationVersionId":"([-\w.]+)"`)
)

// setup verifies the environment and resolves every value the steps need. Nothing is persisted, so a
// failure here leaves no progress file behind.
func (service *Service) setup(executionContext context.Context, run *Run) error {
	checks := []func(context.Context, *Run) error{
		service.verifyProjectRoot,
		service.verifyTools,
		service.fetchRemotes,
		service.verifyRevisions,
		service.verifyNoLocalChanges,
		service.resolveVersions,
		service.resolveLatestSerializationID,
		service.readPullRequests,
		service.checkPullRequestsInLatestRelease,
		service.resolveNextSerializationID,
		service.resolveProductionVersion,
	}
	for _, check := range checks {
		if checkError := check(executionContext, run); checkError != nil {
			return checkError
		}
	}

	if validationError := run.record.Validate(); validationError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, "record", releaseerrors.ErrSerializationIDInvalid, validationError)
	}
	runState := run.State()
	service.logger.Debug(setupResolvedMessageConstant,
		zap.String(nextVersionFieldNameConstant, runState.NextVersion),
		zap.String(nextIDFieldNameConstant, runState.NextSerializationID),
		zap.String(decisionFieldNameConstant, runState.SerializationDecision),
		zap.Int(pullRequestCountFieldNameConstant, len(run.PullRequests())),
	)
	return nil
}

func (service *Service) verifyProjectRoot(_ context.Context, run *Run) error {
	markerInfo, statError := os.Stat(run.projectPath(projectRootMarkerFileConstant))
	if statError != nil || markerInfo.IsDir() {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, run.workingDirectory, releaseerrors.ErrNotProjectRoot, notProjectRootMessageConstant)
	}
	return nil
}

func (service *Service) verifyTools(executionContext context.Context, _ *Run) error {
	service.reporter.Info(verifyToolsMessageConstant)
	gitVersion, gitError := service.repository.Version(executionContext)
	if gitError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, string(execshell.CommandGit), releaseerrors.ErrToolUnavailable, gitError)
	}
	service.logger.Debug(toolVersionMessageConstant, zap.String(toolFieldNameConstant, string(execshell.CommandGit)), zap.String(versionFieldNameConstant, gitVersion))

	mavenVersion, mavenError := service.buildTool.Version(executionContext)
	if mavenError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, string(execshell.CommandMaven), releaseerrors.ErrToolUnavailable, mavenError)
	}
	service.logger.Debug(toolVersionMessageConstant, zap.String(toolFieldNameConstant, string(execshell.CommandMaven)), zap.String(versionFieldNameConstant, mavenVersion))
	return nil
}

func (service *Service) fetchRemotes(executionContext context.Context, _ *Run) error {
	if fetchError := service.repository.FetchAll(executionContext); fetchError != nil {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, "fetch", releaseerrors.ErrFetchFailed, fetchFailedMessageConstant+" "+fetchError.Error())
	}
	return nil
}

func (service *Service) verifyRevisions(executionContext context.Context, run *Run) error {
	options := run.Options()
	if options.ReleaseOnly {
		service.reporter.Info(verifyReleaseBranchMessage)
	} else {
		service.reporter.Info(verifyBaseAndBranchMessage)
		if existsError := service.requireRevision(executionContext, options.ReleaseBase(), baseRevisionNotFoundMessage); existsError != nil {
			return existsError
		}
	}
	return service.requireRevision(executionContext, run.Config().ReleaseBranchPath(), releaseBranchNotFoundMessage)
}

func (service *Service) requireRevision(executionContext context.Context, revision string, missingMessage string) error {
	exists, verifyError := service.repository.RevisionExists(executionContext, revision)
	if verifyError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, revision, releaseerrors.ErrRevisionNotFound, verifyError)
	}
	if !exists {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, revision, releaseerrors.ErrRevisionNotFound, missingMessage)
	}
	return nil
}

func (service *Service) verifyNoLocalChanges(executionContext context.Context, _ *Run) error {
	service.reporter.Info(verifyLocalChangesMessage)
	dirty, checkError := service.repository.HasLocalChanges(executionContext)
	if checkError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, "working tree", releaseerrors.ErrLocalChanges, checkError)
	}
	if dirty {
		return releaseerrors.WrapMessage(releaseerrors.OperationSetup, "working tree", releaseerrors.ErrLocalChanges, localChangesMessageConstant)
	}
	return nil
}

func (service *Service) resolveVersions(executionContext context.Context, run *Run) error {
	config := run.Config()
	base := run.Options().ReleaseBase()

	service.reporter.Info(resolveVersionMessageConstant)
	descriptorContent, showError := service.repository.ShowFile(executionContext, base, config.DescriptorFileName())
	if showError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, config.DescriptorFileName(), releaseerrors.ErrVersionNotFound, showError)
	}
	projectVersion, versionError := descriptor.ReadProjectVersion(descriptorContent)
	if versionError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationData, config.DescriptorFileName(), releaseerrors.ErrVersionNotFound, versionError)
	}
	majorVersion, majorError := versioning.ParseMajorVersion(projectVersion, config.ReleaseRemote)
	if majorError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationData, config.DescriptorFileName(), releaseerrors.ErrVersionNotFound, majorError)
	}

	service.reporter.Info(resolveNextVersionMessageConstant)
	tags, tagsError := service.repository.ListTags(executionContext)
	if tagsError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, "tags", releaseerrors.ErrVersionNotFound, tagsError)
	}
	tagVersions, resolveError := versioning.ResolveTagVersions(tags, majorVersion, config.ReleaseRemote)
	if resolveError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationData, "tags", releaseerrors.ErrVersionNotFound, resolveError)
	}

	run.tags = tags
	run.tagVersions = tagVersions
	run.record.State.MajorVersion = majorVersion
	run.record.State.LatestVersion = tagVersions.LatestVersion()
	run.record.State.NextVersion = tagVersions.NextVersion()
	return nil
}

func (service *Service) resolveLatestSerializationID(executionContext context.Context, run *Run) error {
	service.reporter.Info(resolveLatestIDMessageConstant)
	releaseTags, matchError := versioning.MatchingReleaseTags(run.tags, run.tagVersions.Major, run.tagVersions.Qualifier, serializationTagScanLimitConstant)
	if matchError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationData, "tags", releaseerrors.ErrSerializationIDInvalid, matchError)
	}
	history := service.history(run)
	serializationIDs := make([]string, 0, len(releaseTags))
	for _, tag := range releaseTags {
		serializationID, readError := history.SerializationIDAt(executionContext, tag)
		if readError != nil {
			return releaseerrors.Wrap(releaseerrors.OperationData, tag, releaseerrors.ErrSerializationIDInvalid, readError)
		}
		serializationIDs = append(serializationIDs, serializationID)
	}
	run.record.State.LatestSerializationID = run.format.Max(serializationIDs)
	return nil
}

func (service *Service) readPullRequests(executionContext context.Context, run *Run) error {
	config := run.Config()
	label := strings.TrimSpace(config.IncludePullRequestsLabel)
	if run.Options().SkipPullRequests || len(label) == 0 {
		service.reporter.Info(skipPullRequestsMessageConstant)
		return nil
	}

	service.reporter.Info(readPullRequestsMessageConstant)
	labeled, listError := service.pullRequests.ListLabeledPullRequests(executionContext, config.GitHubOwner, config.GitHubRepository, label)
	if listError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, label, releaseerrors.ErrPullRequestLookupFailed, listError)
	}
	pullRequests := make([]state.PullRequest, 0, len(labeled))
	for _, pullRequest := range labeled {
		pullRequests = append(pullRequests, state.PullRequest{
			Number:         pullRequest.Number,
			Title:          pullRequest.Title,
			HeadCommitHash: pullRequest.HeadCommitHash,
			Labels:         append([]string{}, pullRequest.Labels...),
			BumpLabel:      pullRequest.HasLabel(githubapi.BumpSerializationIDLabel),
		})
	}
	run.record.PullRequests = pullRequests
	return nil
}

func (service *Service) checkPullRequestsInLatestRelease(executionContext context.Context, run *Run) error {
	candidates := make([]state.PullRequest, 0)
	for _, pullRequest := range run.PullRequests() {
		if pullRequest.BumpLabel {
			candidates = append(candidates, pullRequest)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	service.reporter.Info(checkPullRequestsTemplate, githubapi.BumpSerializationIDLabel)
	if run.tagVersions.Latest == 0 {
		service.reporter.Info(noPreviousReleaseMessageConstant)
		return nil
	}
	latestTag := run.State().LatestTag()
	latestHash, resolveError := service.repository.ResolveCommitHash(executionContext, latestTag)
	if resolveError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, latestTag, releaseerrors.ErrRevisionNotFound, resolveError)
	}
	for _, pullRequest := range candidates {
		included, ancestorError := service.repository.IsAncestor(executionContext, pullRequest.HeadCommitHash, latestHash)
		if ancestorError != nil {
			// git answers for unknown objects with a failing exit code; such a commit is not released.
			var failedError execshell.CommandFailedError
			if !errors.As(ancestorError, &failedError) {
				return releaseerrors.Wrap(releaseerrors.OperationSetup, pullRequest.Description(), releaseerrors.ErrRevisionNotFound, ancestorError)
			}
			service.logger.Debug(ancestorCheckFailedMessageConstant, zap.String(pullRequestFieldNameConstant, pullRequest.Description()), zap.Error(ancestorError))
			included = false
		}
		if !included {
			service.reporter.Info(pullRequestBumpTemplate, pullRequest.Description())
			run.record.State.PullRequestBump = true
			return nil
		}
	}
	return nil
}

func (service *Service) resolveNextSerializationID(executionContext context.Context, run *Run) error {
	service.reporter.Info(resolveNextIDMessageConstant)
	options := run.Options()
	runState := run.State()

	baseHash, resolveError := service.repository.ResolveCommitHash(executionContext, options.ReleaseBase())
	if resolveError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, options.ReleaseBase(), releaseerrors.ErrRevisionNotFound, resolveError)
	}

	decision, decisionError := versioning.ResolveNextSerializationID(executionContext, service.history(run), run.format, versioning.DecisionInput{
		ForceBump:             options.BumpSerializationID,
		ReleaseOnly:           options.ReleaseOnly,
		PullRequestBump:       runState.PullRequestBump,
		LatestSerializationID: runState.LatestSerializationID,
		LatestReleaseRevision: runState.LatestTag(),
		BaseRevision:          baseHash,
	})
	if decisionError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationData, "ser_ver_id", releaseerrors.ErrSerializationIDInvalid, decisionError)
	}
	if decision.Reason == versioning.DecisionUpstreamChanged {
		service.reporter.Info(upstreamChangedTemplate, decision.LatestUpstreamID, decision.BaseUpstreamID)
	}

	run.record.State.NextSerializationID = decision.SerializationID
	run.record.State.SerializationDecision = string(decision.Reason)
	return nil
}

func (service *Service) resolveProductionVersion(executionContext context.Context, run *Run) error {
	productionURL := strings.TrimSpace(run.Config().ProductionURL)
	if len(productionURL) == 0 {
		service.reporter.Info(productionURLMissingMessageConstant)
		return nil
	}

	service.reporter.Info(productionLookupMessageTemplate, productionURL)
	result, curlError := service.scripts.ExecuteCurl(executionContext, execshell.CommandDetails{
		Arguments:        []string{curlSilentFlagConstant, curlShowErrorFlagConstant, curlFailFlagConstant, productionURL},
		WorkingDirectory: run.workingDirectory,
	})
	if curlError != nil {
		return releaseerrors.Wrap(releaseerrors.OperationSetup, productionURL, releaseerrors.ErrProductionLookupFailed, curlError)
	}
	version, serializationID := ParseProductionVersion(result.StandardOutput)
	run.record.State.ProductionVersion = version
	run.record.State.ProductionSerializationID = serializationID
	return nil
}

// ParseProductionVersion extracts the deployed version and serialization version id from the production
// endpoint response. Missing values are returned empty.
func ParseProductionVersion(body string) (string, string) {
	version := ""
	if match := productionVersionPattern.FindStringSubmatch(body); match != nil {
		version = match[1]
	}
	serializationID := ""
	if match := productionSerializationIDPattern.FindStringSubmatch(body); match != nil {
		serializationID = match[1]
	}
	return version, serializationID
}

func (service *Service) history(run *Run) repositoryHistory {
	return repositoryHistory{repository: service.repository, descriptorFile: run.Config().DescriptorFileName()}
}

// repositoryHistory reads serialization ids from the descriptor as committed at a revision.
type repositoryHistory struct {
	repository     GitRepository
	descriptorFile string
}

func (history repositoryHistory) RecentCommits(executionContext context.Context, revision string, limit int) ([]string, error) {
	return history.repository.RecentCommits(executionContext, revision, limit)
}

func (history repositoryHistory) SerializationIDAt(executionContext context.Context, revision string) (string, error) {
	content, showError := history.repository.ShowFile(executionContext, revision, history.descriptorFile)
	if showError != nil {
		return "", showError
	}
	serializationID, readError := descriptor.ReadSerializationID(content)
	if readError != nil {
		return "", fmt.Errorf("%s at %s: %w", history.descriptorFile, revision, readError)
	}
	return serializationID, nil
}
