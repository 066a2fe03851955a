// Package provider defines the interfaces implemented by each VCS hosting
// service (GitHub, GitLab, Gitea) and the registry they register with.
package provider

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// ErrUnsupported is returned by operations a provider does not implement
var ErrUnsupported = errors.New("operation not supported by provider")

// PullRequest represents a pull/merge request
type PullRequest struct {
	Number      int    `json:"number"`
	EntityID    int64  `json:"entity_id,omitempty"` // provider-global id, where it differs from Number
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"` // open, closed, merged
	HeadBranch  string `json:"head_branch"`
	HeadSHA     string `json:"head_sha"`
	BaseBranch  string `json:"base_branch"`
	BaseSHA     string `json:"base_sha"`
	Author      string `json:"author"`
	URL         string `json:"url"`
}

// WebhookEventType represents the type of webhook event
type WebhookEventType string

const (
	EventTypePush        WebhookEventType = "push"
	EventTypePullRequest WebhookEventType = "pull_request"
)

// Normalized PR actions that should trigger a review
const (
	PREventActionOpened      = "opened"
	PREventActionSynchronize = "synchronize"
	PREventActionReopened    = "reopened"
)

// WebhookEvent represents a parsed webhook event
type WebhookEvent struct {
	Type          WebhookEventType `json:"type"`
	Provider      string           `json:"provider"`
	Owner         string           `json:"owner"`
	Repo          string           `json:"repo"`
	Ref           string           `json:"ref"` // head branch for PRs, pushed branch for pushes
	BaseRef       string           `json:"base_ref,omitempty"`
	CommitSHA     string           `json:"commit_sha"`
	BaseCommitSHA string           `json:"base_commit_sha,omitempty"`
	PRNumber      int              `json:"pr_number,omitempty"`
	PREntityID    int64            `json:"pr_entity_id,omitempty"`
	Action        string           `json:"action,omitempty"`
	Sender        string           `json:"sender"`
	PRTitle       string           `json:"pr_title,omitempty"`
	PRDescription string           `json:"pr_description,omitempty"`
	RawPayload    []byte           `json:"-"`
}

// Comment represents a comment on a PR
type Comment struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// Operations reads repository state needed to build an analysis request
type Operations interface {
	// GetPullRequest retrieves pull request details
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error)

	// GetPullRequestDiff returns the unified diff of a PR against its base
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)

	// GetCommitRangeDiff returns the unified diff between two commits
	GetCommitRangeDiff(ctx context.Context, owner, repo, base, head string) (string, error)

	// CheckFileExistsInBranch reports whether path exists on branch
	CheckFileExistsInBranch(ctx context.Context, owner, repo, branch, path string) (bool, error)

	// FindPullRequestForCommit returns the open PR containing commit, or 0
	FindPullRequestForCommit(ctx context.Context, owner, repo, commit string) (int, error)
}

// Reporting publishes analysis results. Every optional method may return
// ErrUnsupported.
type Reporting interface {
	// PostAnalysisResults publishes the summary of analysis on the PR.
	// prEntityID is the provider-global PR id where the provider needs one.
	PostAnalysisResults(ctx context.Context, analysis *model.CodeAnalysis, project *model.Project, prNumber int, prEntityID int64) error

	PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error)
	PostCommentReply(ctx context.Context, owner, repo string, prNumber int, parentID int64, body string) (int64, error)
	ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*Comment, error)

	// DeleteCommentsByMarker deletes every PR comment containing marker and
	// returns how many were removed
	DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error)
	DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error
	UpdateComment(ctx context.Context, owner, repo string, prNumber int, commentID int64, body string) error
}

// Provider is a VCS hosting service
type Provider interface {
	Operations
	Reporting

	// Name returns the provider name (github, gitlab, gitea)
	Name() string

	// GetBaseURL returns the base URL of the provider
	GetBaseURL() string

	// ParseWebhook parses and authenticates an incoming webhook request
	ParseWebhook(r *http.Request, secret string) (*WebhookEvent, error)

	// ValidateToken validates the provider token
	ValidateToken(ctx context.Context) error
}

// ProviderOptions holds options for creating a provider
type ProviderOptions struct {
	Token              string // access token
	BaseURL            string // base URL for self-hosted instances
	InsecureSkipVerify bool   // skip SSL certificate verification
}

// ProviderFactory creates a provider instance
type ProviderFactory func(opts *ProviderOptions) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProviderFactory)
)

// Register registers a provider factory
func Register(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create creates a provider by name
func Create(name string, opts *ProviderOptions) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &ProviderError{
			Provider: name,
			Message:  "provider not registered",
		}
	}
	if opts == nil {
		opts = &ProviderOptions{}
	}
	return factory(opts)
}

// Names returns the registered provider names in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderError represents a provider-related error
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return "[" + e.Provider + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[" + e.Provider + "] " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Unsupported returns a ProviderError wrapping ErrUnsupported
func Unsupported(providerName, operation string) error {
	return &ProviderError{Provider: providerName, Message: operation, Err: ErrUnsupported}
}

// ShouldProcessPREvent determines if a PR/MR webhook action should trigger
// a review: opened, synchronize and reopened, plus the GitLab spellings.
func ShouldProcessPREvent(action string) bool {
	switch strings.ToLower(action) {
	case PREventActionOpened, PREventActionSynchronize, PREventActionReopened:
		return true
	case "open", "update", "reopen":
		return true
	default:
		return false
	}
}
