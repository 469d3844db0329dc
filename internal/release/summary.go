package release

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/release/state"
)

const (
	// SummaryFileName is the Markdown release summary written to the project root.
	SummaryFileName = ".custom_release_summary.md"
	// ChangelogScriptPath renders the changelog between two tags, relative to the project root.
	ChangelogScriptPath = "script/changelog-diff.py"

	changelogProductionTitle     = "Changelog production 🦋"
	changelogPreviousTitle       = "Changelog previous release 🐛"
	changelogScriptMissingFormat = "Script '%s' not found! The changelog is left out of the summary."
	summaryWrittenTemplate       = "Summary written to: %s"
	summaryFilePermissions       = 0o644
)

// Changelog is a rendered changelog section of the summary.
type Changelog struct {
	Title   string
	Content string
}

// BuildSummary renders the release summary document.
func BuildSummary(record state.Record, changelogs []Changelog) string {
	runState := record.State
	var builder strings.Builder
	builder.WriteString("# OTP Release Summary\n\n")
	builder.WriteString("## Version\n\n")
	fmt.Fprintf(&builder, "  - New version/git tag: `%s`\n", runState.NextVersion)
	fmt.Fprintf(&builder, "  - Production version/git tag: `%s`\n", runState.ProductionVersion)
	fmt.Fprintf(&builder, "  - New serialization version: `%s`\n", runState.NextSerializationID)
	fmt.Fprintf(&builder, "  - Old serialization version: `%s`\n", runState.LatestSerializationID)
	fmt.Fprintf(&builder, "  - Prod serialization version: `%s`\n\n", runState.ProductionSerializationID)

	if len(record.PullRequests) > 0 {
		builder.WriteString("## Pull Requests\n\n")
		fmt.Fprintf(&builder, "These PRs are tagged with %s.\n\n", record.Config.IncludePullRequestsLabel)
		for _, pullRequest := range record.PullRequests {
			fmt.Fprintf(&builder, "  -  %s\n", pullRequest.MarkdownLink())
		}
		builder.WriteString("\n")
	}

	for _, changelog := range changelogs {
		content := strings.TrimSpace(changelog.Content)
		if len(content) == 0 {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	return builder.String()
}

func (service *Service) writeSummary(executionContext context.Context, run *Run) error {
	changelogs, changelogError := service.renderChangelogs(executionContext, run)
	if changelogError != nil {
		return changelogError
	}
	summaryPath := run.projectPath(SummaryFileName)
	if writeError := os.WriteFile(summaryPath, []byte(BuildSummary(*run.record, changelogs)), summaryFilePermissions); writeError != nil {
		return fmt.Errorf("unable to write %s: %w", summaryPath, writeError)
	}
	service.reporter.Info(summaryWrittenTemplate, summaryPath)
	return nil
}

func (service *Service) renderChangelogs(executionContext context.Context, run *Run) ([]Changelog, error) {
	scriptPath := run.projectPath(ChangelogScriptPath)
	if scriptInfo, statError := os.Stat(scriptPath); statError != nil || scriptInfo.IsDir() {
		service.reporter.Warn(changelogScriptMissingFormat, ChangelogScriptPath)
		return nil, nil
	}

	runState := run.State()
	type tagRange struct {
		title string
		from  string
		to    string
	}
	ranges := make([]tagRange, 0, 2)
	if productionTag := runState.ProductionTag(); len(productionTag) > 0 {
		ranges = append(ranges, tagRange{title: changelogProductionTitle, from: productionTag, to: runState.LatestTag()})
	}
	ranges = append(ranges, tagRange{title: changelogPreviousTitle, from: runState.LatestTag(), to: runState.NextTag()})

	changelogs := make([]Changelog, 0, len(ranges))
	for _, changelogRange := range ranges {
		result, scriptError := service.scripts.ExecuteScript(executionContext, scriptPath, execshell.CommandDetails{
			Arguments:        []string{changelogRange.from, changelogRange.to, changelogRange.title},
			WorkingDirectory: run.workingDirectory,
		})
		if scriptError != nil {
			return nil, scriptError
		}
		changelogs = append(changelogs, Changelog{Title: changelogRange.title, Content: result.StandardOutput})
	}
	return changelogs, nil
}
