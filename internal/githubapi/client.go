package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opentripplanner/custom-release/internal/execshell"
	"github.com/opentripplanner/custom-release/internal/githubauth"
)

const (
	// BumpSerializationIDLabel marks pull requests that require a new serialization version id.
	BumpSerializationIDLabel = "+Bump Serialization Id"

	graphQLEndpointConstant                 = "https://api.github.com/graphql"
	silentFlagConstant                      = "--silent"
	showErrorFlagConstant                   = "--show-error"
	failFlagConstant                        = "--fail"
	methodFlagConstant                      = "-X"
	methodPostConstant                      = "POST"
	headerFlagConstant                      = "-H"
	headerFromStandardInputConstant         = "@-"
	contentTypeHeaderConstant               = "Content-Type: application/json"
	dataFlagConstant                        = "--data-binary"
	authorizationHeaderTemplateConstant     = "Authorization: Bearer %s\n"
	readPullRequestsOperationNameConstant   = "ReadOpenPullRequests"
	ownerFieldNameConstant                  = "owner"
	repositoryFieldNameConstant             = "repository"
	labelFieldNameConstant                  = "label"
	requiredValueMessageConstant            = "value required"
	executorNotConfiguredMessageConstant    = "github api executor not configured"
	invalidInputErrorTemplateConstant       = "%s: %s"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	queryErrorTemplateConstant              = "%s query rejected: %s"
	missingRepositoryMessageConstant        = "repository missing from response"
	listLabeledPullRequestsOperationName    = OperationName("ListLabeledPullRequests")
	readPullRequestsQueryConstant           = `query ReadOpenPullRequests($owner: String!, $name: String!, $label: String!) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: 100, states: OPEN, labels: [$label]) {
      nodes {
        number
        title
        headRefOid
        labels(first: 20) {
          nodes {
            name
          }
        }
      }
    }
  }
}`
)

// OperationName describes a named GitHub API workflow supported by the client.
type OperationName string

// PullRequest represents an open pull request selected for inclusion in a release.
type PullRequest struct {
	Number         int
	Title          string
	HeadCommitHash string
	Labels         []string
}

// HasLabel reports whether the pull request carries the label, ignoring case.
func (pullRequest PullRequest) HasLabel(label string) bool {
	for _, candidate := range pullRequest.Labels {
		if strings.EqualFold(candidate, label) {
			return true
		}
	}
	return false
}

// CurlExecutor is the minimal interface required from execshell.ShellExecutor.
type CurlExecutor interface {
	ExecuteCurl(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// TokenResolver returns the GitHub API token, reporting false when none is configured.
type TokenResolver func() (string, bool)

// Client issues GitHub GraphQL queries through curl.
type Client struct {
	executor      CurlExecutor
	tokenResolver TokenResolver
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub API operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates a malformed or unexpected response body.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying decoding error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// QueryError reports GraphQL errors returned alongside a response.
type QueryError struct {
	Operation OperationName
	Messages  []string
}

// Error describes the rejected query.
func (queryError QueryError) Error() string {
	return fmt.Sprintf(queryErrorTemplateConstant, queryError.Operation, strings.Join(queryError.Messages, "; "))
}

// NewClient constructs a GitHub API client. A nil tokenResolver reads the token from the environment.
func NewClient(executor CurlExecutor, tokenResolver TokenResolver) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if tokenResolver == nil {
		tokenResolver = func() (string, bool) {
			return githubauth.ResolveToken(nil)
		}
	}
	return &Client{executor: executor, tokenResolver: tokenResolver}, nil
}

type graphQLRequest struct {
	Query         string            `json:"query"`
	OperationName string            `json:"operationName"`
	Variables     map[string]string `json:"variables"`
}

type pullRequestsResponse struct {
	Data *struct {
		Repository *struct {
			PullRequests struct {
				Nodes []struct {
					Number     int    `json:"number"`
					Title      string `json:"title"`
					HeadRefOid string `json:"headRefOid"`
					Labels     struct {
						Nodes []struct {
							Name string `json:"name"`
						} `json:"nodes"`
					} `json:"labels"`
				} `json:"nodes"`
			} `json:"pullRequests"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListLabeledPullRequests returns open pull requests carrying the include label.
// Only the include label and the serialization id bump label are retained on each pull request.
func (client *Client) ListLabeledPullRequests(executionContext context.Context, owner string, repository string, label string) ([]PullRequest, error) {
	trimmedOwner := strings.TrimSpace(owner)
	if len(trimmedOwner) == 0 {
		return nil, InvalidInputError{FieldName: ownerFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedRepository := strings.TrimSpace(repository)
	if len(trimmedRepository) == 0 {
		return nil, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedLabel := strings.TrimSpace(label)
	if len(trimmedLabel) == 0 {
		return nil, InvalidInputError{FieldName: labelFieldNameConstant, Message: requiredValueMessageConstant}
	}

	token, tokenAvailable := client.tokenResolver()
	if !tokenAvailable {
		return nil, githubauth.NewMissingTokenError(string(listLabeledPullRequestsOperationName))
	}

	requestBody, encodingError := json.Marshal(graphQLRequest{
		Query:         readPullRequestsQueryConstant,
		OperationName: readPullRequestsOperationNameConstant,
		Variables: map[string]string{
			"owner": trimmedOwner,
			"name":  trimmedRepository,
			"label": trimmedLabel,
		},
	})
	if encodingError != nil {
		return nil, OperationError{Operation: listLabeledPullRequestsOperationName, Cause: encodingError}
	}

	commandDetails := execshell.CommandDetails{
		Arguments: []string{
			silentFlagConstant,
			showErrorFlagConstant,
			failFlagConstant,
			methodFlagConstant,
			methodPostConstant,
			headerFlagConstant,
			headerFromStandardInputConstant,
			headerFlagConstant,
			contentTypeHeaderConstant,
			dataFlagConstant,
			string(requestBody),
			graphQLEndpointConstant,
		},
		StandardInput: []byte(fmt.Sprintf(authorizationHeaderTemplateConstant, token)),
	}

	executionResult, executionError := client.executor.ExecuteCurl(executionContext, commandDetails)
	if executionError != nil {
		return nil, OperationError{Operation: listLabeledPullRequestsOperationName, Cause: executionError}
	}

	var response pullRequestsResponse
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return nil, ResponseDecodingError{Operation: listLabeledPullRequestsOperationName, Cause: decodingError}
	}
	if len(response.Errors) > 0 {
		messages := make([]string, 0, len(response.Errors))
		for _, queryError := range response.Errors {
			messages = append(messages, queryError.Message)
		}
		return nil, QueryError{Operation: listLabeledPullRequestsOperationName, Messages: messages}
	}
	if response.Data == nil || response.Data.Repository == nil {
		return nil, ResponseDecodingError{Operation: listLabeledPullRequestsOperationName, Cause: errors.New(missingRepositoryMessageConstant)}
	}

	retainedLabels := []string{strings.ToLower(BumpSerializationIDLabel), strings.ToLower(trimmedLabel)}
	pullRequests := make([]PullRequest, 0, len(response.Data.Repository.PullRequests.Nodes))
	for _, node := range response.Data.Repository.PullRequests.Nodes {
		pullRequest := PullRequest{
			Number:         node.Number,
			Title:          node.Title,
			HeadCommitHash: node.HeadRefOid,
			Labels:         []string{},
		}
		for _, labelNode := range node.Labels.Nodes {
			for _, retained := range retainedLabels {
				if strings.ToLower(labelNode.Name) == retained {
					pullRequest.Labels = append(pullRequest.Labels, labelNode.Name)
					break
				}
			}
		}
		pullRequests = append(pullRequests, pullRequest)
	}
	return pullRequests, nil
}
