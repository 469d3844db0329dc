// Package versioning derives release versions from tags and decides the next serialization version id.
package versioning

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	snapshotQualifierConstant           = "SNAPSHOT"
	semverPrefixConstant                = "v"
	tagPrefixConstant                   = "v"
	versionTemplateConstant             = "%s-%s-%d"
	majorVersionPatternTemplate         = `^(\d+\.\d+\.\d+)-(%s-\d+|%s)`
	releaseTagPatternTemplate           = `^v%s-%s-(\d+)`
	majorVersionNotFoundTemplate        = "version %q does not match <major>-%s-<n> or <major>-%s"
	majorVersionInvalidTemplate         = "major version %q is not a valid semantic version"
	qualifierRequiredMessageConstant    = "version qualifier required"
	majorVersionRequiredMessageConstant = "major version required"
)

var (
	// ErrMajorVersionNotFound indicates the descriptor version does not carry a recognizable major version.
	ErrMajorVersionNotFound = errors.New("major version not found")
	// ErrQualifierRequired indicates an empty version qualifier.
	ErrQualifierRequired = errors.New(qualifierRequiredMessageConstant)
	// ErrMajorVersionRequired indicates an empty major version.
	ErrMajorVersionRequired = errors.New(majorVersionRequiredMessageConstant)
)

// ParseMajorVersion extracts X.Y.Z from a descriptor version of the form X.Y.Z-<qualifier>-N or X.Y.Z-SNAPSHOT.
func ParseMajorVersion(descriptorVersion string, qualifier string) (string, error) {
	trimmedQualifier := strings.TrimSpace(qualifier)
	if len(trimmedQualifier) == 0 {
		return "", ErrQualifierRequired
	}
	pattern, compileError := regexp.Compile(fmt.Sprintf(majorVersionPatternTemplate, regexp.QuoteMeta(trimmedQualifier), snapshotQualifierConstant))
	if compileError != nil {
		return "", compileError
	}
	match := pattern.FindStringSubmatch(strings.TrimSpace(descriptorVersion))
	if match == nil {
		return "", fmt.Errorf("%w: "+majorVersionNotFoundTemplate, ErrMajorVersionNotFound, descriptorVersion, trimmedQualifier, snapshotQualifierConstant)
	}
	majorVersion := match[1]
	if !semver.IsValid(semverPrefixConstant + majorVersion) {
		return "", fmt.Errorf("%w: "+majorVersionInvalidTemplate, ErrMajorVersionNotFound, majorVersion)
	}
	return majorVersion, nil
}

// TagVersions holds the latest and next release numbers for a major version and qualifier.
type TagVersions struct {
	Major     string
	Qualifier string
	Latest    int
	Next      int
}

// LatestVersion renders the latest release version, for example 2.8.0-entur-4.
func (versions TagVersions) LatestVersion() string {
	return fmt.Sprintf(versionTemplateConstant, versions.Major, versions.Qualifier, versions.Latest)
}

// NextVersion renders the version of the release being built.
func (versions TagVersions) NextVersion() string {
	return fmt.Sprintf(versionTemplateConstant, versions.Major, versions.Qualifier, versions.Next)
}

// TagFor renders the git tag for a release version.
func TagFor(version string) string {
	return tagPrefixConstant + version
}

// ResolveTagVersions finds the highest release number among tags named v<major>-<qualifier>-<N>.
// Latest is zero when no tag matches; Next is always Latest+1.
func ResolveTagVersions(tags []string, major string, qualifier string) (TagVersions, error) {
	pattern, patternError := releaseTagPattern(major, qualifier)
	if patternError != nil {
		return TagVersions{}, patternError
	}
	latest := 0
	for _, tag := range tags {
		match := pattern.FindStringSubmatch(strings.TrimSpace(tag))
		if match == nil {
			continue
		}
		number, parseError := strconv.Atoi(match[1])
		if parseError != nil {
			continue
		}
		if number > latest {
			latest = number
		}
	}
	return TagVersions{Major: strings.TrimSpace(major), Qualifier: strings.TrimSpace(qualifier), Latest: latest, Next: latest + 1}, nil
}

// MatchingReleaseTags returns up to limit tags named v<major>-<qualifier>-<N>, in input order.
// A non-positive limit returns every match.
func MatchingReleaseTags(tags []string, major string, qualifier string, limit int) ([]string, error) {
	pattern, patternError := releaseTagPattern(major, qualifier)
	if patternError != nil {
		return nil, patternError
	}
	matching := make([]string, 0)
	for _, tag := range tags {
		trimmedTag := strings.TrimSpace(tag)
		if !pattern.MatchString(trimmedTag) {
			continue
		}
		matching = append(matching, trimmedTag)
		if limit > 0 && len(matching) == limit {
			break
		}
	}
	return matching, nil
}

func releaseTagPattern(major string, qualifier string) (*regexp.Regexp, error) {
	trimmedMajor := strings.TrimSpace(major)
	if len(trimmedMajor) == 0 {
		return nil, ErrMajorVersionRequired
	}
	trimmedQualifier := strings.TrimSpace(qualifier)
	if len(trimmedQualifier) == 0 {
		return nil, ErrQualifierRequired
	}
	return regexp.Compile(fmt.Sprintf(releaseTagPatternTemplate, regexp.QuoteMeta(trimmedMajor), regexp.QuoteMeta(trimmedQualifier)))
}
