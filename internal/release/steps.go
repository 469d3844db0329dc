package release

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opentripplanner/custom-release/internal/descriptor"
	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/release/sequencer"
	"github.com/opentripplanner/custom-release/internal/release/state"
)

// Step names persisted as resume points.
const (
	StepResetReleaseBranch     = "reset-release-branch"
	StepMergePullRequestPrefix = "merge-pull-request-"
	StepMergeExtensionBranches = "merge-extension-branches"
	StepMergePreviousRelease   = "merge-previous-release"
	StepRunReleaseExtension    = "run-release-extension"
	StepSetProjectVersion      = "set-project-version"
	StepSetSerializationID     = "set-serialization-id"
	StepRunTests               = "run-tests"
	StepCommitRelease          = "commit-release"
	StepTagRelease             = "tag-release"
	StepPushRelease            = "push-release"
	StepWriteSummary           = "write-summary"
)

const (
	// ExtensionScriptPath is the project script run after merging, relative to the project root.
	ExtensionScriptPath = "script/custom-release-extension"

	mergePreviousReleaseMessage       = "Merge old release into the release branch - NO CHANGES COPIED OVER"
	extensionScriptTimeoutConstant    = 20 * time.Second
	pullRequestRefspecTemplate        = "pull/%d/head:%s"
	resetTitleConstant                = "Reset release branch to base revision ..."
	mergePullRequestTitleTemplate     = "Merge in PR %s"
	mergeExtensionTitleConstant       = "Merge in extension branches ..."
	mergePreviousTitleConstant        = "Merge old release into the release branch ..."
	runExtensionTitleConstant         = "Run custom release extensions script ..."
	setProjectVersionTitleConstant    = "Set Maven project version ..."
	setSerializationIDTitleConstant   = "Set serialization.version.id ..."
	runTestsTitleConstant             = "Run unit tests"
	commitTitleConstant               = "Commit pom.xml with next version and serialization version id set ..."
	tagTitleTemplate                  = "Tag release with %s ..."
	pushTitleConstant                 = "Push new release with pom.xml changes and new tag"
	summaryTitleTemplate              = "Print summary file: %s"
	noExtensionBranchesMessage        = "No extension branch configured, merging is skipped."
	extensionBranchMergedTemplate     = "Extension branch merged: %s"
	mergedWithoutChangesMessage       = "Merged - NO CHANGES COPIED OVER"
	extensionScriptMissingTemplate    = "Script '%s' not found!"
	newVersionSetTemplate             = "New version set: %s"
	serializationIDSetTemplate        = "%s serialization.version.id set: %s"
	commitDoneTemplate                = "Commit done: %s"
	tagDoneTemplate                   = "Tag done: %s"
	releasePushedTemplate             = "Release pushed to: %s"
	checkoutDescriptionTemplate       = "git checkout -B %s %s"
	resetDescriptionTemplate          = "git reset --hard %s"
	fetchDescriptionTemplate          = "git fetch %s %s"
	mergeDescriptionTemplate          = "git merge %s"
	mergeOursDescriptionTemplate      = "git merge -s ours %s"
	deleteBranchDescriptionTemplate   = "git branch -D %s"
	setVersionDescriptionTemplate     = "mvn versions:set -DnewVersion=%s"
	setIDDescriptionTemplate          = "write %s to %s"
	addDescriptionConstant            = "git add ."
	commitDescriptionTemplate         = "git commit --all -m %q"
	tagDescriptionTemplate            = "git tag -a %s -m %q"
	pushDescriptionTemplate           = "git push -f %s %s"
	newSerializationIDQualifier       = "New"
	unchangedSerializationIDQualifier = "Same"
)

// releaseSteps lists the resumable steps in execution order. Release-only runs publish the release branch
// as it is, so the preparation steps are left out.
func (service *Service) releaseSteps(run *Run) []sequencer.Step {
	steps := make([]sequencer.Step, 0)
	releaseOnly := run.Options().ReleaseOnly

	if !releaseOnly {
		steps = append(steps, sequencer.Step{Name: StepResetReleaseBranch, Title: resetTitleConstant, Action: func(executionContext context.Context) error {
			return service.resetReleaseBranch(executionContext, run)
		}})
		for _, pullRequest := range run.PullRequests() {
			steps = append(steps, sequencer.Step{
				Name:  fmt.Sprintf("%s%d", StepMergePullRequestPrefix, pullRequest.Number),
				Title: fmt.Sprintf(mergePullRequestTitleTemplate, pullRequest.Description()),
				Action: func(executionContext context.Context) error {
					return service.mergePullRequest(executionContext, run, pullRequest)
				},
			})
		}
		steps = append(steps, sequencer.Step{Name: StepMergeExtensionBranches, Title: mergeExtensionTitleConstant, Action: func(executionContext context.Context) error {
			return service.mergeExtensionBranches(executionContext, run)
		}})
	}

	steps = append(steps, sequencer.Step{Name: StepMergePreviousRelease, Title: mergePreviousTitleConstant, Action: func(executionContext context.Context) error {
		return service.mergePreviousRelease(executionContext, run)
	}})

	if !releaseOnly {
		steps = append(steps, sequencer.Step{Name: StepRunReleaseExtension, Title: runExtensionTitleConstant, Action: func(executionContext context.Context) error {
			return service.runReleaseExtension(executionContext, run)
		}})
	}

	steps = append(steps,
		sequencer.Step{Name: StepSetProjectVersion, Title: setProjectVersionTitleConstant, Action: func(executionContext context.Context) error {
			return service.setProjectVersion(executionContext, run)
		}},
		sequencer.Step{Name: StepSetSerializationID, Title: setSerializationIDTitleConstant, Action: func(executionContext context.Context) error {
			return service.setSerializationID(executionContext, run)
		}},
		sequencer.Step{Name: StepRunTests, Title: runTestsTitleConstant, Action: func(executionContext context.Context) error {
			return service.buildTool.Test(executionContext)
		}},
		sequencer.Step{Name: StepCommitRelease, Title: commitTitleConstant, Action: func(executionContext context.Context) error {
			return service.commitRelease(executionContext, run)
		}},
		sequencer.Step{Name: StepTagRelease, Title: fmt.Sprintf(tagTitleTemplate, run.State().NextVersion), Action: func(executionContext context.Context) error {
			return service.tagRelease(executionContext, run)
		}},
		sequencer.Step{Name: StepPushRelease, Title: pushTitleConstant, Action: func(executionContext context.Context) error {
			return service.pushRelease(executionContext, run)
		}},
	)

	if run.Options().PrintSummary {
		steps = append(steps, sequencer.Step{Name: StepWriteSummary, Title: fmt.Sprintf(summaryTitleTemplate, SummaryFileName), Action: func(executionContext context.Context) error {
			return service.writeSummary(executionContext, run)
		}})
	}
	return steps
}

// mutate runs action unless the run is a dry run, in which case the skipped command is reported.
func (service *Service) mutate(run *Run, description string, action func() error) error {
	if run.Options().DryRun {
		service.reporter.DryRunSkipped(description)
		return nil
	}
	return action()
}

func (service *Service) resetReleaseBranch(executionContext context.Context, run *Run) error {
	config := run.Config()
	base := run.Options().BaseRevision

	if fetchError := service.repository.Fetch(executionContext, config.ReleaseRemote, config.ReleaseBranch); fetchError != nil {
		return fetchError
	}
	checkoutDescription := fmt.Sprintf(checkoutDescriptionTemplate, config.ReleaseBranch, config.ReleaseBranchPath())
	if checkoutError := service.mutate(run, checkoutDescription, func() error {
		return service.repository.ResetBranch(executionContext, config.ReleaseBranch, config.ReleaseBranchPath())
	}); checkoutError != nil {
		return checkoutError
	}
	return service.mutate(run, fmt.Sprintf(resetDescriptionTemplate, base), func() error {
		return service.repository.ResetHard(executionContext, base)
	})
}

func (service *Service) mergePullRequest(executionContext context.Context, run *Run, pullRequest state.PullRequest) error {
	config := run.Config()
	temporaryBranch := pullRequest.TemporaryBranch()
	refspec := fmt.Sprintf(pullRequestRefspecTemplate, pullRequest.Number, temporaryBranch)

	if fetchError := service.mutate(run, fmt.Sprintf(fetchDescriptionTemplate, config.UpstreamRemote, refspec), func() error {
		return service.repository.Fetch(executionContext, config.UpstreamRemote, refspec)
	}); fetchError != nil {
		return fetchError
	}
	if mergeError := service.mutate(run, fmt.Sprintf(mergeDescriptionTemplate, temporaryBranch), func() error {
		return service.repository.Merge(executionContext, temporaryBranch)
	}); mergeError != nil {
		return mergeError
	}
	return service.mutate(run, fmt.Sprintf(deleteBranchDescriptionTemplate, temporaryBranch), func() error {
		return service.repository.DeleteBranch(executionContext, temporaryBranch, true)
	})
}

func (service *Service) mergeExtensionBranches(executionContext context.Context, run *Run) error {
	config := run.Config()
	branches := make([]string, 0, len(config.ExtensionBranches))
	for _, branch := range config.ExtensionBranches {
		if trimmed := strings.TrimSpace(branch); len(trimmed) > 0 {
			branches = append(branches, trimmed)
		}
	}
	if len(branches) == 0 {
		service.reporter.Info(noExtensionBranchesMessage)
		return nil
	}

	for _, branch := range branches {
		if fetchError := service.repository.Fetch(executionContext, config.ReleaseRemote, branch); fetchError != nil {
			return fetchError
		}
		remoteBranch := config.RemoteBranch(branch)
		if mergeError := service.mutate(run, fmt.Sprintf(mergeDescriptionTemplate, remoteBranch), func() error {
			return service.repository.Merge(executionContext, remoteBranch)
		}); mergeError != nil {
			return mergeError
		}
		service.reporter.Info(extensionBranchMergedTemplate, remoteBranch)
	}
	return nil
}

func (service *Service) mergePreviousRelease(executionContext context.Context, run *Run) error {
	releaseBranchPath := run.Config().ReleaseBranchPath()
	if mergeError := service.mutate(run, fmt.Sprintf(mergeOursDescriptionTemplate, releaseBranchPath), func() error {
		return service.repository.MergeOurs(executionContext, releaseBranchPath, mergePreviousReleaseMessage)
	}); mergeError != nil {
		return mergeError
	}
	service.reporter.Info(mergedWithoutChangesMessage)
	return nil
}

func (service *Service) runReleaseExtension(executionContext context.Context, run *Run) error {
	scriptPath := run.projectPath(ExtensionScriptPath)
	scriptInfo, statError := os.Stat(scriptPath)
	if statError != nil || scriptInfo.IsDir() {
		service.reporter.Warn(extensionScriptMissingTemplate, ExtensionScriptPath)
		return nil
	}
	return service.mutate(run, ExtensionScriptPath, func() error {
		_, scriptError := service.scripts.ExecuteScript(executionContext, scriptPath, execshell.CommandDetails{
			WorkingDirectory: run.workingDirectory,
			Timeout:          extensionScriptTimeoutConstant,
		})
		return scriptError
	})
}

func (service *Service) setProjectVersion(executionContext context.Context, run *Run) error {
	nextVersion := run.State().NextVersion
	if setError := service.mutate(run, fmt.Sprintf(setVersionDescriptionTemplate, nextVersion), func() error {
		return service.buildTool.SetVersion(executionContext, nextVersion)
	}); setError != nil {
		return setError
	}
	service.reporter.Info(newVersionSetTemplate, nextVersion)
	return nil
}

func (service *Service) setSerializationID(_ context.Context, run *Run) error {
	runState := run.State()
	descriptorFile := descriptor.NewFile(run.projectPath(run.Config().DescriptorFileName()))
	if writeError := service.mutate(run, fmt.Sprintf(setIDDescriptionTemplate, runState.NextSerializationID, run.Config().DescriptorFileName()), func() error {
		return descriptorFile.SetSerializationID(runState.NextSerializationID)
	}); writeError != nil {
		return writeError
	}
	qualifier := unchangedSerializationIDQualifier
	if runState.SerializationIDChanged() {
		qualifier = newSerializationIDQualifier
	}
	service.reporter.Info(serializationIDSetTemplate, qualifier, runState.NextSerializationID)
	return nil
}

func (service *Service) commitRelease(executionContext context.Context, run *Run) error {
	description := run.State().ReleaseDescription()
	if addError := service.mutate(run, addDescriptionConstant, func() error {
		return service.repository.AddAll(executionContext)
	}); addError != nil {
		return addError
	}
	if commitError := service.mutate(run, fmt.Sprintf(commitDescriptionTemplate, description), func() error {
		return service.repository.Commit(executionContext, description)
	}); commitError != nil {
		return commitError
	}
	service.reporter.Info(commitDoneTemplate, description)
	return nil
}

func (service *Service) tagRelease(executionContext context.Context, run *Run) error {
	runState := run.State()
	nextTag := runState.NextTag()
	description := runState.ReleaseDescription()
	if tagError := service.mutate(run, fmt.Sprintf(tagDescriptionTemplate, nextTag, description), func() error {
		return service.repository.CreateAnnotatedTag(executionContext, nextTag, description)
	}); tagError != nil {
		return tagError
	}
	service.reporter.Info(tagDoneTemplate, nextTag)
	return nil
}

func (service *Service) pushRelease(executionContext context.Context, run *Run) error {
	config := run.Config()
	for _, reference := range []string{config.ReleaseBranch, run.State().NextTag()} {
		pushedReference := reference
		if pushError := service.mutate(run, fmt.Sprintf(pushDescriptionTemplate, config.ReleaseRemote, pushedReference), func() error {
			return service.repository.ForcePush(executionContext, config.ReleaseRemote, pushedReference)
		}); pushError != nil {
			return pushError
		}
	}
	service.reporter.Info(releasePushedTemplate, config.ReleaseBranchPath())
	return nil
}
