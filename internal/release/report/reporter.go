// Package report prints the operator facing output of a release: section banners, progress lines and the
// setup summary.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/opentripplanner/custom-release/internal/release/state"
)

const (
	sectionRuleWidthConstant     = 91
	sectionRuleCharacterConstant = "-"
	warningMarkerConstant        = "WARNING"
	errorMarkerConstant          = "ERROR"
	successMessageConstant       = "RELEASE SUCCESS!"
	dryRunSkippedTemplate        = "=> %s  (dry run) SKIPPED"
	setupSectionTitleConstant    = "Configuration"
	setupEncodeErrorTemplate     = "unable to render setup report: %w"
	yamlIndentConstant           = 2
)

// SetupReport is the YAML document printed after setup.
type SetupReport struct {
	Options      state.RunOptions `yaml:"options"`
	Config       state.RunConfig  `yaml:"config"`
	PullRequests []string         `yaml:"pull_requests,omitempty"`
	Release      state.RunState   `yaml:"release"`
}

// NewSetupReport collects the values shown after setup from a record.
func NewSetupReport(record state.Record) SetupReport {
	pullRequests := make([]string, 0, len(record.PullRequests))
	for _, pullRequest := range record.PullRequests {
		pullRequests = append(pullRequests, pullRequest.Description()+" "+strings.Join(pullRequest.Labels, ", "))
	}
	return SetupReport{
		Options:      record.Options,
		Config:       record.Config,
		PullRequests: pullRequests,
		Release:      record.State,
	}
}

// Reporter writes styled operator messages.
type Reporter struct {
	writer       io.Writer
	ruleStyle    lipgloss.Style
	titleStyle   lipgloss.Style
	warningStyle lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewReporter builds a Reporter for writer. Colors are only emitted when writer is a color capable terminal.
func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = io.Discard
	}
	renderer := lipgloss.NewRenderer(writer)
	return &Reporter{
		writer:       writer,
		ruleStyle:    renderer.NewStyle().Foreground(lipgloss.Color("8")),
		titleStyle:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		warningStyle: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		errorStyle:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		successStyle: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		mutedStyle:   renderer.NewStyle().Faint(true),
	}
}

// Section prints a banner framed by horizontal rules.
func (reporter *Reporter) Section(title string) {
	rule := reporter.ruleStyle.Render(strings.Repeat(sectionRuleCharacterConstant, sectionRuleWidthConstant))
	reporter.printf("\n%s\n  %s\n%s\n", rule, reporter.titleStyle.Render(title), rule)
}

// Info prints a progress line.
func (reporter *Reporter) Info(format string, arguments ...any) {
	reporter.printf(format+"\n", arguments...)
}

// Warn prints a highlighted warning.
func (reporter *Reporter) Warn(format string, arguments ...any) {
	reporter.printf("\n%s %s\n\n", reporter.warningStyle.Render(warningMarkerConstant), fmt.Sprintf(format, arguments...))
}

// Error prints err with the ERROR marker.
func (reporter *Reporter) Error(err error) {
	if err == nil {
		return
	}
	reporter.printf("\n%s %s\n\n", reporter.errorStyle.Render(errorMarkerConstant), err.Error())
}

// DryRunSkipped reports an action that a dry run does not perform.
func (reporter *Reporter) DryRunSkipped(description string) {
	reporter.printf("%s\n", reporter.mutedStyle.Render(fmt.Sprintf(dryRunSkippedTemplate, description)))
}

// Success prints the final release banner.
func (reporter *Reporter) Success() {
	reporter.printf("\n%s\n\n", reporter.successStyle.Render(successMessageConstant))
}

// Setup prints the setup report as YAML under a Configuration banner.
func (reporter *Reporter) Setup(setupReport SetupReport) error {
	var builder strings.Builder
	encoder := yaml.NewEncoder(&builder)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(setupReport); encodeError != nil {
		return fmt.Errorf(setupEncodeErrorTemplate, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return fmt.Errorf(setupEncodeErrorTemplate, closeError)
	}
	reporter.Section(setupSectionTitleConstant)
	reporter.printf("%s", builder.String())
	return nil
}

func (reporter *Reporter) printf(format string, arguments ...any) {
	_, _ = fmt.Fprintf(reporter.writer, format, arguments...)
}
