package githubauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvReleaseAPIToken is the preferred variable holding the GitHub API token for release runs.
	EnvReleaseAPIToken = "CUSTOM_RELEASE_GIT_HUB_API_TOKEN"
	// EnvGitHubCLIToken is the variable used by the GitHub CLI.
	EnvGitHubCLIToken = "GH_TOKEN"
	// EnvGitHubToken is the variable used by GitHub Actions.
	EnvGitHubToken = "GITHUB_TOKEN"

	missingTokenMessageTemplateConstant = "GitHub API token required for %s; set %s"
)

var tokenEnvironmentVariables = []string{EnvReleaseAPIToken, EnvGitHubCLIToken, EnvGitHubToken}

// MissingTokenError reports that no GitHub token could be resolved for an operation.
type MissingTokenError struct {
	operation string
}

// NewMissingTokenError constructs a MissingTokenError for the named operation.
func NewMissingTokenError(operation string) MissingTokenError {
	return MissingTokenError{operation: strings.TrimSpace(operation)}
}

// Error describes the missing token.
func (tokenError MissingTokenError) Error() string {
	return fmt.Sprintf(missingTokenMessageTemplateConstant, tokenError.operation, strings.Join(tokenEnvironmentVariables, ", "))
}

// Operation names the operation that required the token.
func (tokenError MissingTokenError) Operation() string {
	return tokenError.operation
}

// IsMissingTokenError reports whether err wraps a MissingTokenError.
func IsMissingTokenError(err error) (MissingTokenError, bool) {
	var tokenError MissingTokenError
	if errors.As(err, &tokenError) {
		return tokenError, true
	}
	return MissingTokenError{}, false
}

// ResolveToken returns the first non-empty token from the overrides map and then the process environment,
// checking variables in order of precedence.
func ResolveToken(overrides map[string]string) (string, bool) {
	for _, variableName := range tokenEnvironmentVariables {
		if value, present := overrides[variableName]; present {
			if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
				return trimmed, true
			}
		}
		if trimmed := strings.TrimSpace(os.Getenv(variableName)); len(trimmed) > 0 {
			return trimmed, true
		}
	}
	return "", false
}
