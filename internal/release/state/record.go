// Package state defines the persisted release run record and the stores that hold it between invocations.
package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersion identifies the record layout written by this build.
	SchemaVersion = 1

	defaultDescriptorFileConstant   = "pom.xml"
	tagPrefixConstant               = "v"
	releaseDescriptionTemplate      = "Version %s (%s)"
	remoteBranchTemplate            = "%s/%s"
	pullRequestDescriptionTemplate  = "%s #%d"
	missingFieldTemplateConstant    = "%s is required"
	serializationPrefixTemplate     = "next serialization id %q does not start with %q"
	pullRequestLinkTemplateConstant = "[%s](%s%d) %s"
	// PullRequestURLBase is the upstream pull request page prefix used in summaries.
	PullRequestURLBase = "https://github.com/opentripplanner/OpenTripPlanner/pull/"
)

// ErrRecordInvalid indicates a record violating its invariants.
var ErrRecordInvalid = errors.New("release record invalid")

// RunConfig holds the release settings loaded at start. It never changes during a run.
type RunConfig struct {
	UpstreamRemote           string   `json:"upstream_remote" mapstructure:"upstream_remote" yaml:"upstream_remote"`
	ReleaseRemote            string   `json:"release_remote" mapstructure:"release_remote" yaml:"release_remote"`
	ReleaseBranch            string   `json:"release_branch" mapstructure:"release_branch" yaml:"release_branch"`
	ExtensionBranches        []string `json:"ext_branches" mapstructure:"ext_branches" yaml:"ext_branches"`
	IncludePullRequestsLabel string   `json:"include_prs_label" mapstructure:"include_prs_label" yaml:"include_prs_label"`
	SerializationIDPrefix    string   `json:"ser_ver_id_prefix" mapstructure:"ser_ver_id_prefix" yaml:"ser_ver_id_prefix"`
	ProductionURL            string   `json:"otp_production_url" mapstructure:"otp_production_url" yaml:"otp_production_url"`
	GitHubOwner              string   `json:"github_owner" mapstructure:"github_owner" yaml:"github_owner"`
	GitHubRepository         string   `json:"github_repository" mapstructure:"github_repository" yaml:"github_repository"`
	DescriptorFile           string   `json:"descriptor_file" mapstructure:"descriptor_file" yaml:"descriptor_file"`
}

// Validate reports every required setting that is missing.
func (config RunConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{name: "upstream_remote", value: config.UpstreamRemote},
		{name: "release_remote", value: config.ReleaseRemote},
		{name: "release_branch", value: config.ReleaseBranch},
		{name: "ser_ver_id_prefix", value: config.SerializationIDPrefix},
		{name: "github_owner", value: config.GitHubOwner},
		{name: "github_repository", value: config.GitHubRepository},
	}
	problems := make([]error, 0)
	for _, field := range required {
		if len(strings.TrimSpace(field.value)) == 0 {
			problems = append(problems, fmt.Errorf(missingFieldTemplateConstant, field.name))
		}
	}
	return errors.Join(problems...)
}

// DescriptorFileName returns the configured descriptor file, defaulting to pom.xml.
func (config RunConfig) DescriptorFileName() string {
	trimmed := strings.TrimSpace(config.DescriptorFile)
	if len(trimmed) == 0 {
		return defaultDescriptorFileConstant
	}
	return trimmed
}

// RemoteBranch qualifies branch with the release remote, for example entur/otp2_entur_develop.
func (config RunConfig) RemoteBranch(branch string) string {
	return fmt.Sprintf(remoteBranchTemplate, config.ReleaseRemote, branch)
}

// ReleaseBranchPath returns the release branch qualified with the release remote.
func (config RunConfig) ReleaseBranchPath() string {
	return config.RemoteBranch(config.ReleaseBranch)
}

// RunOptions holds the command line options of the run.
type RunOptions struct {
	BaseRevision        string `json:"base_revision" yaml:"base_revision"`
	DryRun              bool   `json:"dry_run" yaml:"dry_run"`
	Debug               bool   `json:"debug" yaml:"debug"`
	ReleaseOnly         bool   `json:"release_only" yaml:"release_only"`
	BumpSerializationID bool   `json:"bump_ser_ver_id" yaml:"bump_ser_ver_id"`
	SkipPullRequests    bool   `json:"skip_prs" yaml:"skip_prs"`
	PrintSummary        bool   `json:"print_summary" yaml:"print_summary"`
}

// ReleaseBase returns the base revision, or HEAD when releasing the current checkout.
func (options RunOptions) ReleaseBase() string {
	trimmed := strings.TrimSpace(options.BaseRevision)
	if len(trimmed) == 0 {
		return "HEAD"
	}
	return trimmed
}

// RunState holds the values derived during setup.
type RunState struct {
	MajorVersion              string `json:"major_version" yaml:"major_version"`
	LatestVersion             string `json:"latest_version" yaml:"latest_version"`
	NextVersion               string `json:"next_version" yaml:"next_version"`
	LatestSerializationID     string `json:"latest_ser_ver_id" yaml:"latest_ser_ver_id"`
	NextSerializationID       string `json:"next_ser_ver_id" yaml:"next_ser_ver_id"`
	SerializationDecision     string `json:"ser_ver_id_decision" yaml:"ser_ver_id_decision"`
	ProductionVersion         string `json:"production_version,omitempty" yaml:"production_version,omitempty"`
	ProductionSerializationID string `json:"production_ser_ver_id,omitempty" yaml:"production_ser_ver_id,omitempty"`
	PullRequestBump           bool   `json:"prs_bump_ser_ver_id" yaml:"prs_bump_ser_ver_id"`
}

// LatestTag returns the tag of the latest release.
func (runState RunState) LatestTag() string {
	return tagPrefixConstant + runState.LatestVersion
}

// NextTag returns the tag of the release being built.
func (runState RunState) NextTag() string {
	return tagPrefixConstant + runState.NextVersion
}

// ProductionTag returns the tag of the version running in production, or empty when unknown.
func (runState RunState) ProductionTag() string {
	if len(runState.ProductionVersion) == 0 {
		return ""
	}
	return tagPrefixConstant + runState.ProductionVersion
}

// ReleaseDescription is used as commit message and tag annotation.
func (runState RunState) ReleaseDescription() string {
	return fmt.Sprintf(releaseDescriptionTemplate, runState.NextVersion, runState.NextSerializationID)
}

// SerializationIDChanged reports whether the release introduces a new serialization id.
func (runState RunState) SerializationIDChanged() bool {
	return runState.NextSerializationID != runState.LatestSerializationID
}

// PullRequest is an upstream pull request merged into the release.
type PullRequest struct {
	Number         int      `json:"number" yaml:"number"`
	Title          string   `json:"title" yaml:"title"`
	HeadCommitHash string   `json:"commit_hash" yaml:"commit_hash"`
	Labels         []string `json:"labels" yaml:"labels"`
	BumpLabel      bool     `json:"ser_label_set" yaml:"ser_label_set"`
}

// Description renders "<title> #<number>".
func (pullRequest PullRequest) Description() string {
	return fmt.Sprintf(pullRequestDescriptionTemplate, pullRequest.Title, pullRequest.Number)
}

// MarkdownLink renders the pull request as a Markdown link followed by its labels.
func (pullRequest PullRequest) MarkdownLink() string {
	labels := make([]string, 0, len(pullRequest.Labels))
	for _, label := range pullRequest.Labels {
		labels = append(labels, "`"+label+"`")
	}
	return strings.TrimSpace(fmt.Sprintf(pullRequestLinkTemplateConstant, pullRequest.Description(), PullRequestURLBase, pullRequest.Number, "["+strings.Join(labels, ", ")+"]"))
}

// TemporaryBranch names the local branch the pull request head is fetched into.
func (pullRequest PullRequest) TemporaryBranch() string {
	return fmt.Sprintf("pull-request-%d", pullRequest.Number)
}

// Record is the persisted form of a release run.
type Record struct {
	SchemaVersion        int           `json:"schema_version"`
	RunID                string        `json:"run_id"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	ResumePoint          string        `json:"resume_point"`
	ResumePointCompleted bool          `json:"resume_point_completed"`
	LastVisitedStep      string        `json:"last_visited_step"`
	Config               RunConfig     `json:"config"`
	Options              RunOptions    `json:"options"`
	State                RunState      `json:"state"`
	PullRequests         []PullRequest `json:"pull_requests"`
}

// NewRecord starts a record for a fresh run.
func NewRecord(config RunConfig, options RunOptions, now time.Time) Record {
	return Record{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.NewString(),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
		Config:        config,
		Options:       options,
		PullRequests:  []PullRequest{},
	}
}

// Validate checks the record invariants.
func (record Record) Validate() error {
	if record.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema version %d, expected %d", ErrSchemaMismatch, record.SchemaVersion, SchemaVersion)
	}
	if _, parseError := uuid.Parse(record.RunID); parseError != nil {
		return fmt.Errorf("%w: run id: %w", ErrRecordInvalid, parseError)
	}
	nextID := record.State.NextSerializationID
	prefix := strings.TrimSpace(record.Config.SerializationIDPrefix)
	if len(nextID) > 0 && !strings.HasPrefix(nextID, prefix) {
		return fmt.Errorf("%w: "+serializationPrefixTemplate, ErrRecordInvalid, nextID, prefix)
	}
	return nil
}
