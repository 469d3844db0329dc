package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/opentripplanner/custom-release/internal/execshell"
)

const (
	gitFetchSubcommandConstant                = "fetch"
	gitAllFlagConstant                        = "--all"
	gitCheckoutSubcommandConstant             = "checkout"
	gitCreateOrResetBranchFlagConstant        = "-B"
	gitResetSubcommandConstant                = "reset"
	gitHardFlagConstant                       = "--hard"
	gitMergeSubcommandConstant                = "merge"
	gitStrategyFlagConstant                   = "-s"
	gitOursStrategyConstant                   = "ours"
	gitMessageFlagConstant                    = "-m"
	gitBranchSubcommandConstant               = "branch"
	gitDeleteFlagConstant                     = "--delete"
	gitForceFlagConstant                      = "--force"
	gitTagSubcommandConstant                  = "tag"
	gitListFlagConstant                       = "--list"
	gitVersionSortFlagConstant                = "--sort=-v:refname"
	gitAnnotateFlagConstant                   = "-a"
	gitShowSubcommandConstant                 = "show"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitQuietFlagConstant                      = "--quiet"
	gitVerifyFlagConstant                     = "--verify"
	gitHeadReferenceConstant                  = "HEAD"
	gitCommitSuffixConstant                   = "^{commit}"
	gitDiffIndexSubcommandConstant            = "diff-index"
	gitMergeBaseSubcommandConstant            = "merge-base"
	gitIsAncestorFlagConstant                 = "--is-ancestor"
	gitLogSubcommandConstant                  = "log"
	gitOnelineFormatFlagConstant              = "--format=oneline"
	gitAddSubcommandConstant                  = "add"
	gitAllPathsConstant                       = "."
	gitCommitSubcommandConstant               = "commit"
	gitPushSubcommandConstant                 = "push"
	gitForceShortFlagConstant                 = "-f"
	gitVersionFlagConstant                    = "--version"
	gitRevisionPathTemplateConstant           = "%s:%s"
	gitLimitFlagTemplateConstant              = "-%d"
	falseExitCodeConstant                     = 1
	repositoryPathFieldNameConstant           = "repository_path"
	branchNameFieldNameConstant               = "branch_name"
	startPointFieldNameConstant               = "start_point"
	remoteNameFieldNameConstant               = "remote_name"
	revisionFieldNameConstant                 = "revision"
	referenceFieldNameConstant                = "reference"
	filePathFieldNameConstant                 = "file_path"
	messageFieldNameConstant                  = "message"
	tagNameFieldNameConstant                  = "tag_name"
	limitFieldNameConstant                    = "limit"
	requiredValueMessageConstant              = "value required"
	positiveValueMessageConstant              = "positive value required"
	executorNotConfiguredMessageConstant      = "git executor not configured"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	fetchOperationNameConstant                = RepositoryOperationName("Fetch")
	fetchAllOperationNameConstant             = RepositoryOperationName("FetchAll")
	resetBranchOperationNameConstant          = RepositoryOperationName("ResetBranch")
	resetHardOperationNameConstant            = RepositoryOperationName("ResetHard")
	mergeOperationNameConstant                = RepositoryOperationName("Merge")
	mergeOursOperationNameConstant            = RepositoryOperationName("MergeOurs")
	deleteBranchOperationNameConstant         = RepositoryOperationName("DeleteBranch")
	listTagsOperationNameConstant             = RepositoryOperationName("ListTags")
	showFileOperationNameConstant             = RepositoryOperationName("ShowFile")
	resolveCommitOperationNameConstant        = RepositoryOperationName("ResolveCommitHash")
	verifyRevisionOperationNameConstant       = RepositoryOperationName("VerifyRevision")
	localChangesOperationNameConstant         = RepositoryOperationName("CheckLocalChanges")
	isAncestorOperationNameConstant           = RepositoryOperationName("IsAncestor")
	recentCommitsOperationNameConstant        = RepositoryOperationName("RecentCommits")
	addAllOperationNameConstant               = RepositoryOperationName("AddAll")
	commitOperationNameConstant               = RepositoryOperationName("Commit")
	tagOperationNameConstant                  = RepositoryOperationName("CreateAnnotatedTag")
	pushOperationNameConstant                 = RepositoryOperationName("ForcePush")
	versionOperationNameConstant              = RepositoryOperationName("Version")
)

var fullCommitHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager coordinates Git operations on a single working tree through execshell.
type RepositoryManager struct {
	executor       GitCommandExecutor
	repositoryPath string
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// NewRepositoryManager constructs a RepositoryManager for the working tree at repositoryPath.
func NewRepositoryManager(executor GitCommandExecutor, repositoryPath string) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return &RepositoryManager{executor: executor, repositoryPath: trimmedPath}, nil
}

// Version runs git --version and returns the reported version line.
func (manager *RepositoryManager) Version(executionContext context.Context) (string, error) {
	executionResult, executionError := manager.run(executionContext, versionOperationNameConstant, gitVersionFlagConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// FetchAll fetches every configured remote.
func (manager *RepositoryManager) FetchAll(executionContext context.Context) error {
	_, executionError := manager.run(executionContext, fetchAllOperationNameConstant, gitFetchSubcommandConstant, gitAllFlagConstant)
	return executionError
}

// Fetch fetches the refspec from the remote.
func (manager *RepositoryManager) Fetch(executionContext context.Context, remoteName string, refspec string) error {
	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedRefspec := strings.TrimSpace(refspec)
	if len(trimmedRefspec) == 0 {
		return InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, fetchOperationNameConstant, gitFetchSubcommandConstant, trimmedRemote, trimmedRefspec)
	return executionError
}

// ResetBranch creates or resets branchName to startPoint and checks it out (git checkout -B).
func (manager *RepositoryManager) ResetBranch(executionContext context.Context, branchName string, startPoint string) error {
	trimmedBranch := strings.TrimSpace(branchName)
	if len(trimmedBranch) == 0 {
		return InvalidRepositoryInputError{FieldName: branchNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedStartPoint := strings.TrimSpace(startPoint)
	if len(trimmedStartPoint) == 0 {
		return InvalidRepositoryInputError{FieldName: startPointFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, resetBranchOperationNameConstant,
		gitCheckoutSubcommandConstant, gitCreateOrResetBranchFlagConstant, trimmedBranch, trimmedStartPoint)
	return executionError
}

// ResetHard moves the current branch and working tree to revision.
func (manager *RepositoryManager) ResetHard(executionContext context.Context, revision string) error {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, resetHardOperationNameConstant, gitResetSubcommandConstant, gitHardFlagConstant, trimmedRevision)
	return executionError
}

// Merge merges revision into the current branch.
func (manager *RepositoryManager) Merge(executionContext context.Context, revision string) error {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, mergeOperationNameConstant, gitMergeSubcommandConstant, trimmedRevision)
	return executionError
}

// MergeOurs records revision as merged while keeping the current tree unchanged (git merge -s ours).
func (manager *RepositoryManager) MergeOurs(executionContext context.Context, revision string, message string) error {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedMessage := strings.TrimSpace(message)
	if len(trimmedMessage) == 0 {
		return InvalidRepositoryInputError{FieldName: messageFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, mergeOursOperationNameConstant,
		gitMergeSubcommandConstant, gitStrategyFlagConstant, gitOursStrategyConstant, trimmedRevision, gitMessageFlagConstant, trimmedMessage)
	return executionError
}

// DeleteBranch removes a local branch. When forceDelete is true the deletion is forced.
func (manager *RepositoryManager) DeleteBranch(executionContext context.Context, branchName string, forceDelete bool) error {
	trimmedBranch := strings.TrimSpace(branchName)
	if len(trimmedBranch) == 0 {
		return InvalidRepositoryInputError{FieldName: branchNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandArguments := []string{gitBranchSubcommandConstant, gitDeleteFlagConstant}
	if forceDelete {
		commandArguments = append(commandArguments, gitForceFlagConstant)
	}
	commandArguments = append(commandArguments, trimmedBranch)

	_, executionError := manager.run(executionContext, deleteBranchOperationNameConstant, commandArguments...)
	return executionError
}

// ListTags returns every tag sorted by descending version order.
func (manager *RepositoryManager) ListTags(executionContext context.Context) ([]string, error) {
	executionResult, executionError := manager.run(executionContext, listTagsOperationNameConstant,
		gitTagSubcommandConstant, gitListFlagConstant, gitVersionSortFlagConstant)
	if executionError != nil {
		return nil, executionError
	}
	return splitLines(executionResult.StandardOutput), nil
}

// ShowFile returns the content of filePath at revision.
func (manager *RepositoryManager) ShowFile(executionContext context.Context, revision string, filePath string) (string, error) {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return "", InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	executionResult, executionError := manager.run(executionContext, showFileOperationNameConstant,
		gitShowSubcommandConstant, fmt.Sprintf(gitRevisionPathTemplateConstant, trimmedRevision, trimmedPath))
	if executionError != nil {
		return "", executionError
	}
	return executionResult.StandardOutput, nil
}

// ResolveCommitHash returns the full commit hash for a branch, tag or hash.
func (manager *RepositoryManager) ResolveCommitHash(executionContext context.Context, reference string) (string, error) {
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return "", InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if fullCommitHashPattern.MatchString(trimmedReference) {
		return trimmedReference, nil
	}
	executionResult, executionError := manager.run(executionContext, resolveCommitOperationNameConstant,
		gitRevParseSubcommandConstant, gitVerifyFlagConstant, trimmedReference+gitCommitSuffixConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// RevisionExists reports whether revision resolves to an object.
func (manager *RepositoryManager) RevisionExists(executionContext context.Context, revision string) (bool, error) {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return false, InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runPredicate(executionContext, verifyRevisionOperationNameConstant, true,
		gitRevParseSubcommandConstant, gitQuietFlagConstant, gitVerifyFlagConstant, trimmedRevision)
}

// HasLocalChanges reports whether tracked files differ from HEAD.
func (manager *RepositoryManager) HasLocalChanges(executionContext context.Context) (bool, error) {
	clean, checkError := manager.runPredicate(executionContext, localChangesOperationNameConstant, true,
		gitDiffIndexSubcommandConstant, gitQuietFlagConstant, gitHeadReferenceConstant)
	if checkError != nil {
		return false, checkError
	}
	return !clean, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. An ancestor unknown to the local
// repository is reported as not reachable.
func (manager *RepositoryManager) IsAncestor(executionContext context.Context, ancestor string, descendant string) (bool, error) {
	trimmedAncestor := strings.TrimSpace(ancestor)
	if len(trimmedAncestor) == 0 {
		return false, InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedDescendant := strings.TrimSpace(descendant)
	if len(trimmedDescendant) == 0 {
		return false, InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	// A commit missing from the object store cannot be reachable from any local revision.
	present, presenceError := manager.RevisionExists(executionContext, trimmedAncestor+gitCommitSuffixConstant)
	if presenceError != nil {
		return false, presenceError
	}
	if !present {
		return false, nil
	}
	return manager.runPredicate(executionContext, isAncestorOperationNameConstant, false,
		gitMergeBaseSubcommandConstant, gitIsAncestorFlagConstant, trimmedAncestor, trimmedDescendant)
}

// RecentCommits returns up to limit commit hashes reachable from revision, newest first.
func (manager *RepositoryManager) RecentCommits(executionContext context.Context, revision string, limit int) ([]string, error) {
	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if limit <= 0 {
		return nil, InvalidRepositoryInputError{FieldName: limitFieldNameConstant, Message: positiveValueMessageConstant}
	}
	executionResult, executionError := manager.run(executionContext, recentCommitsOperationNameConstant,
		gitLogSubcommandConstant, fmt.Sprintf(gitLimitFlagTemplateConstant, limit), gitOnelineFormatFlagConstant, trimmedRevision)
	if executionError != nil {
		return nil, executionError
	}

	lines := splitLines(executionResult.StandardOutput)
	hashes := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		hashes = append(hashes, fields[0])
	}
	return hashes, nil
}

// AddAll stages every change in the working tree.
func (manager *RepositoryManager) AddAll(executionContext context.Context) error {
	_, executionError := manager.run(executionContext, addAllOperationNameConstant, gitAddSubcommandConstant, gitAllPathsConstant)
	return executionError
}

// Commit records all tracked changes with message.
func (manager *RepositoryManager) Commit(executionContext context.Context, message string) error {
	trimmedMessage := strings.TrimSpace(message)
	if len(trimmedMessage) == 0 {
		return InvalidRepositoryInputError{FieldName: messageFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, commitOperationNameConstant,
		gitCommitSubcommandConstant, gitAllFlagConstant, gitMessageFlagConstant, trimmedMessage)
	return executionError
}

// CreateAnnotatedTag creates an annotated tag at HEAD.
func (manager *RepositoryManager) CreateAnnotatedTag(executionContext context.Context, tagName string, message string) error {
	trimmedTag := strings.TrimSpace(tagName)
	if len(trimmedTag) == 0 {
		return InvalidRepositoryInputError{FieldName: tagNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedMessage := strings.TrimSpace(message)
	if len(trimmedMessage) == 0 {
		return InvalidRepositoryInputError{FieldName: messageFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, tagOperationNameConstant,
		gitTagSubcommandConstant, gitAnnotateFlagConstant, trimmedTag, gitMessageFlagConstant, trimmedMessage)
	return executionError
}

// ForcePush force-pushes reference to the remote.
func (manager *RepositoryManager) ForcePush(executionContext context.Context, remoteName string, reference string) error {
	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, pushOperationNameConstant,
		gitPushSubcommandConstant, gitForceShortFlagConstant, trimmedRemote, trimmedReference)
	return executionError
}

func (manager *RepositoryManager) run(executionContext context.Context, operation RepositoryOperationName, arguments ...string) (execshell.ExecutionResult, error) {
	commandDetails := execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: manager.repositoryPath,
	}
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return executionResult, RepositoryOperationError{Operation: operation, Cause: executionError}
	}
	return executionResult, nil
}

// runPredicate maps exit code 0 to true and exit code 1 to false. When quietFailure is set any
// non-zero exit code is read as false.
func (manager *RepositoryManager) runPredicate(executionContext context.Context, operation RepositoryOperationName, quietFailure bool, arguments ...string) (bool, error) {
	_, executionError := manager.run(executionContext, operation, arguments...)
	if executionError == nil {
		return true, nil
	}
	var failedError execshell.CommandFailedError
	if errors.As(executionError, &failedError) {
		if failedError.Result.ExitCode == falseExitCodeConstant || quietFailure {
			return false, nil
		}
	}
	return false, executionError
}

func splitLines(output string) []string {
	trimmedOutput := strings.TrimSpace(output)
	if len(trimmedOutput) == 0 {
		return nil
	}
	rawLines := strings.Split(trimmedOutput, "\n")
	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
