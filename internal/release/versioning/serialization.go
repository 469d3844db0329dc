package versioning

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	serializationSeparatorConstant  = "-"
	shortPrefixLengthConstant       = 1
	longPrefixLengthConstant        = 2
	shortPrefixDigitsConstant       = 5
	longPrefixDigitsConstant        = 4
	serializationIDTemplateConstant = "%s-%0*d"
	// UpstreamHistoryDepth bounds the commit walk used to find the upstream serialization id.
	UpstreamHistoryDepth = 20
)

var (
	// ErrPrefixInvalid indicates a serialization id prefix that is not one or two characters long.
	ErrPrefixInvalid = errors.New("serialization id prefix must be one or two characters")
	// ErrSerializationIDMalformed indicates an id that does not follow <prefix>-<digits>.
	ErrSerializationIDMalformed = errors.New("serialization id malformed")
	// ErrPrefixMismatch indicates a resolved id that does not start with the configured prefix.
	ErrPrefixMismatch = errors.New("serialization id does not start with the configured prefix")
	// ErrUpstreamIDNotFound indicates that no upstream id was found in the inspected history.
	ErrUpstreamIDNotFound = errors.New("upstream serialization id not found")
)

// SerializationIDFormat describes ids of the form <prefix>-<zero padded number>.
// One-character prefixes pad to five digits and two-character prefixes pad to four.
type SerializationIDFormat struct {
	prefix string
	digits int
}

// NewSerializationIDFormat validates the prefix and returns the matching format.
func NewSerializationIDFormat(prefix string) (SerializationIDFormat, error) {
	trimmedPrefix := strings.TrimSpace(prefix)
	switch len(trimmedPrefix) {
	case shortPrefixLengthConstant:
		return SerializationIDFormat{prefix: trimmedPrefix, digits: shortPrefixDigitsConstant}, nil
	case longPrefixLengthConstant:
		return SerializationIDFormat{prefix: trimmedPrefix, digits: longPrefixDigitsConstant}, nil
	default:
		return SerializationIDFormat{}, fmt.Errorf("%w: %q", ErrPrefixInvalid, prefix)
	}
}

// Prefix returns the configured prefix.
func (format SerializationIDFormat) Prefix() string {
	return format.prefix
}

// Owns reports whether the id belongs to this project, that is starts with the prefix.
func (format SerializationIDFormat) Owns(serializationID string) bool {
	return len(format.prefix) > 0 && strings.HasPrefix(strings.TrimSpace(serializationID), format.prefix)
}

// Bump increments the numeric suffix of serializationID, keeping the prefix and padding.
func (format SerializationIDFormat) Bump(serializationID string) (string, error) {
	trimmedID := strings.TrimSpace(serializationID)
	if _, found := strings.CutPrefix(trimmedID, format.prefix+serializationSeparatorConstant); !found || len(format.prefix) == 0 {
		return "", fmt.Errorf("%w: %q does not start with %s%s", ErrSerializationIDMalformed, serializationID, format.prefix, serializationSeparatorConstant)
	}
	number, valid := format.number(trimmedID)
	if !valid {
		return "", fmt.Errorf("%w: %q has no numeric suffix", ErrSerializationIDMalformed, serializationID)
	}
	return fmt.Sprintf(serializationIDTemplateConstant, format.prefix, format.digits, number+1), nil
}

// Max returns the greatest non-empty id. Ids owned by this format compare by their numeric suffix, so
// EN-10000 outranks EN-9999, and rank above any other id. Other ids compare lexically.
func (format SerializationIDFormat) Max(serializationIDs []string) string {
	maximum := ""
	maximumNumber := -1
	for _, serializationID := range serializationIDs {
		trimmedID := strings.TrimSpace(serializationID)
		if len(trimmedID) == 0 {
			continue
		}
		number, owned := format.number(trimmedID)
		switch {
		case owned && number > maximumNumber:
			maximum, maximumNumber = trimmedID, number
		case !owned && maximumNumber < 0 && trimmedID > maximum:
			maximum = trimmedID
		}
	}
	return maximum
}

func (format SerializationIDFormat) number(serializationID string) (int, bool) {
	if len(format.prefix) == 0 {
		return 0, false
	}
	numberText, found := strings.CutPrefix(serializationID, format.prefix+serializationSeparatorConstant)
	if !found {
		return 0, false
	}
	number, parseError := strconv.Atoi(numberText)
	if parseError != nil || number < 0 {
		return 0, false
	}
	return number, true
}

// HistoryReader reads the commit history and descriptor contents needed to resolve serialization ids.
type HistoryReader interface {
	RecentCommits(executionContext context.Context, revision string, limit int) ([]string, error)
	SerializationIDAt(executionContext context.Context, revision string) (string, error)
}

// FindUpstreamSerializationID walks the history from revision, newest first, and returns the first id
// not owned by this project.
func FindUpstreamSerializationID(executionContext context.Context, reader HistoryReader, format SerializationIDFormat, revision string) (string, error) {
	commits, historyError := reader.RecentCommits(executionContext, revision, UpstreamHistoryDepth)
	if historyError != nil {
		return "", historyError
	}
	for _, commit := range commits {
		serializationID, readError := reader.SerializationIDAt(executionContext, commit)
		if readError != nil {
			return "", readError
		}
		if !format.Owns(serializationID) {
			return serializationID, nil
		}
	}
	return "", fmt.Errorf("%w: revision %s and previous %d commits", ErrUpstreamIDNotFound, revision, UpstreamHistoryDepth)
}

// DecisionReason explains why a serialization id was chosen.
type DecisionReason string

// Decision reasons in order of precedence.
const (
	DecisionForced          DecisionReason = "forced"
	DecisionReleaseOnly     DecisionReason = "release-only"
	DecisionPullRequest     DecisionReason = "pull-request-label"
	DecisionUpstreamChanged DecisionReason = "upstream-changed"
	DecisionCarriedForward  DecisionReason = "carried-forward"
)

// DecisionInput collects the facts the serialization id decision depends on.
type DecisionInput struct {
	ForceBump             bool
	ReleaseOnly           bool
	PullRequestBump       bool
	LatestSerializationID string
	LatestReleaseRevision string
	BaseRevision          string
}

// Decision is the resolved next serialization id.
type Decision struct {
	SerializationID  string
	Reason           DecisionReason
	LatestUpstreamID string
	BaseUpstreamID   string
}

// Bumped reports whether the decision produced a new id.
func (decision Decision) Bumped() bool {
	switch decision.Reason {
	case DecisionForced, DecisionPullRequest, DecisionUpstreamChanged:
		return true
	default:
		return false
	}
}

// ResolveNextSerializationID applies the decision table:
// forced bump, release-only reuse of the base id, labeled pull request bump,
// upstream id change between the latest release and the base, otherwise carry the latest release id forward.
// The resolved id always starts with the configured prefix.
func ResolveNextSerializationID(executionContext context.Context, reader HistoryReader, format SerializationIDFormat, input DecisionInput) (Decision, error) {
	decision, decisionError := decide(executionContext, reader, format, input)
	if decisionError != nil {
		return Decision{}, decisionError
	}
	if !format.Owns(decision.SerializationID) {
		return Decision{}, fmt.Errorf("%w: %q (prefix %s)", ErrPrefixMismatch, decision.SerializationID, format.Prefix())
	}
	return decision, nil
}

func decide(executionContext context.Context, reader HistoryReader, format SerializationIDFormat, input DecisionInput) (Decision, error) {
	if input.ForceBump {
		return bumpDecision(format, input.LatestSerializationID, DecisionForced)
	}
	if input.ReleaseOnly {
		currentID, readError := reader.SerializationIDAt(executionContext, input.BaseRevision)
		if readError != nil {
			return Decision{}, readError
		}
		return Decision{SerializationID: currentID, Reason: DecisionReleaseOnly}, nil
	}
	if input.PullRequestBump {
		return bumpDecision(format, input.LatestSerializationID, DecisionPullRequest)
	}

	latestUpstreamID, latestError := FindUpstreamSerializationID(executionContext, reader, format, input.LatestReleaseRevision)
	if latestError != nil {
		return Decision{}, latestError
	}
	baseUpstreamID, baseError := FindUpstreamSerializationID(executionContext, reader, format, input.BaseRevision)
	if baseError != nil {
		return Decision{}, baseError
	}
	if latestUpstreamID != baseUpstreamID {
		decision, bumpError := bumpDecision(format, input.LatestSerializationID, DecisionUpstreamChanged)
		decision.LatestUpstreamID = latestUpstreamID
		decision.BaseUpstreamID = baseUpstreamID
		return decision, bumpError
	}

	carriedID, readError := reader.SerializationIDAt(executionContext, input.LatestReleaseRevision)
	if readError != nil {
		return Decision{}, readError
	}
	return Decision{
		SerializationID:  carriedID,
		Reason:           DecisionCarriedForward,
		LatestUpstreamID: latestUpstreamID,
		BaseUpstreamID:   baseUpstreamID,
	}, nil
}

func bumpDecision(format SerializationIDFormat, latestID string, reason DecisionReason) (Decision, error) {
	bumpedID, bumpError := format.Bump(latestID)
	if bumpError != nil {
		return Decision{}, bumpError
	}
	return Decision{SerializationID: bumpedID, Reason: reason}, nil
}
