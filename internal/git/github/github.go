// Package github implements the VCS provider interfaces for GitHub and
// GitHub Enterprise.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/output"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const (
	providerName = "github"

	// API pagination configuration
	defaultPerPage = 100

	// Default GitHub URL for public GitHub
	defaultGitHubURL = "https://github.com"
)

func init() {
	provider.Register(providerName, NewProvider)
}

// GitHubProvider implements provider.Provider for GitHub
type GitHubProvider struct {
	client  *github.Client
	baseURL string
	log     *zap.Logger
}

// NewProvider creates a new GitHub provider instance. A base URL other than
// github.com selects GitHub Enterprise.
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	httpClient := provider.NewHTTPClient(opts.Token, opts.InsecureSkipVerify)

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" && opts.BaseURL != defaultGitHubURL {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "failed to create enterprise client",
				Err:      err,
			}
		}
	}

	return &GitHubProvider{
		client:  client,
		baseURL: opts.BaseURL,
		log:     logger.Named("github"),
	}, nil
}

// Name returns the provider name
func (p *GitHubProvider) Name() string {
	return providerName
}

// GetBaseURL returns the base URL of the provider
func (p *GitHubProvider) GetBaseURL() string {
	if p.baseURL == "" {
		return defaultGitHubURL
	}
	return p.baseURL
}

// wrapError converts an SDK failure into a ProviderError carrying the HTTP status
func wrapError(message string, resp *github.Response, err error) error {
	pe := &provider.ProviderError{Provider: providerName, Message: message, Err: err}
	if resp != nil && resp.Response != nil {
		pe.StatusCode = resp.StatusCode
	}
	return pe
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound
}

// GetPullRequest retrieves pull request details
func (p *GitHubProvider) GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error) {
	pr, resp, err := p.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		p.log.Error("Failed to get pull request",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("number", number),
		)
		return nil, wrapError("failed to get pull request", resp, err)
	}
	return convertPR(pr), nil
}

func convertPR(pr *github.PullRequest) *provider.PullRequest {
	return &provider.PullRequest{
		Number:      pr.GetNumber(),
		EntityID:    pr.GetID(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		State:       pr.GetState(),
		HeadBranch:  pr.GetHead().GetRef(),
		HeadSHA:     pr.GetHead().GetSHA(),
		BaseBranch:  pr.GetBase().GetRef(),
		BaseSHA:     pr.GetBase().GetSHA(),
		Author:      pr.GetUser().GetLogin(),
		URL:         pr.GetHTMLURL(),
	}
}

// GetPullRequestDiff returns the unified diff of a pull request
func (p *GitHubProvider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, resp, err := p.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", wrapError("failed to get pull request diff", resp, err)
	}
	return diff, nil
}

// GetCommitRangeDiff returns the diff between two commits
func (p *GitHubProvider) GetCommitRangeDiff(ctx context.Context, owner, repo, base, head string) (string, error) {
	diff, resp, err := p.client.Repositories.CompareCommitsRaw(ctx, owner, repo, base, head, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", wrapError("failed to compare commits", resp, err)
	}
	return diff, nil
}

// CheckFileExistsInBranch reports whether path exists on branch
func (p *GitHubProvider) CheckFileExistsInBranch(ctx context.Context, owner, repo, branch, path string) (bool, error) {
	_, _, resp, err := p.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if isNotFound(resp) {
			return false, nil
		}
		return false, wrapError("failed to get file contents", resp, err)
	}
	return true, nil
}

// FindPullRequestForCommit returns the first open PR containing commit, or 0
func (p *GitHubProvider) FindPullRequestForCommit(ctx context.Context, owner, repo, commit string) (int, error) {
	prs, resp, err := p.client.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, commit, &github.ListOptions{PerPage: defaultPerPage})
	if err != nil {
		if isNotFound(resp) {
			return 0, nil
		}
		return 0, wrapError("failed to list pull requests for commit", resp, err)
	}
	for _, pr := range prs {
		if pr.GetState() == "open" {
			return pr.GetNumber(), nil
		}
	}
	return 0, nil
}

// PostAnalysisResults replaces the analysis summary comment on the PR.
// GitHub addresses PRs by number, so prEntityID is unused.
func (p *GitHubProvider) PostAnalysisResults(ctx context.Context, analysis *model.CodeAnalysis, project *model.Project, prNumber int, prEntityID int64) error {
	body := output.RenderAnalysis(analysis, project, output.CommentOptions())
	_, err := output.PublishSummary(ctx, p, project.Owner, project.Repo, prNumber, consts.CommentMarker, body)
	return err
}

// PostComment posts a comment on a PR and returns its id
func (p *GitHubProvider) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	comment, resp, err := p.client.Issues.CreateComment(ctx, owner, repo, prNumber, &github.IssueComment{Body: &body})
	if err != nil {
		p.log.Error("Failed to post PR comment",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("pr", prNumber),
		)
		return 0, wrapError("failed to post PR comment", resp, err)
	}
	return comment.GetID(), nil
}

// PostCommentReply replies to a review (line) comment. GitHub issue comments
// are not threaded.
func (p *GitHubProvider) PostCommentReply(ctx context.Context, owner, repo string, prNumber int, parentID int64, body string) (int64, error) {
	comment, resp, err := p.client.PullRequests.CreateCommentInReplyTo(ctx, owner, repo, prNumber, body, parentID)
	if err != nil {
		return 0, wrapError("failed to reply to review comment", resp, err)
	}
	return comment.GetID(), nil
}

// ListComments lists all issue comments on a PR
func (p *GitHubProvider) ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*provider.Comment, error) {
	var result []*provider.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: defaultPerPage}}
	for {
		comments, resp, err := p.client.Issues.ListComments(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, wrapError("failed to list PR comments", resp, err)
		}
		for _, c := range comments {
			result = append(result, &provider.Comment{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				Author:    c.GetUser().GetLogin(),
				CreatedAt: c.GetCreatedAt().Format("2006-01-02T15:04:05Z"),
			})
		}
		if resp.NextPage == 0 {
			return result, nil
		}
		opts.Page = resp.NextPage
	}
}

// DeleteCommentsByMarker deletes every PR comment containing marker
func (p *GitHubProvider) DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error) {
	return provider.DeleteCommentsContaining(ctx, p, owner, repo, prNumber, marker)
}

// DeleteComment deletes a comment by ID
func (p *GitHubProvider) DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error {
	resp, err := p.client.Issues.DeleteComment(ctx, owner, repo, commentID)
	if err != nil {
		return wrapError("failed to delete comment", resp, err)
	}
	p.log.Debug("Deleted comment",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int64("comment_id", commentID),
	)
	return nil
}

// UpdateComment updates an existing comment by ID
func (p *GitHubProvider) UpdateComment(ctx context.Context, owner, repo string, prNumber int, commentID int64, body string) error {
	_, resp, err := p.client.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: &body})
	if err != nil {
		return wrapError("failed to update comment", resp, err)
	}
	return nil
}

// ParseWebhook validates the HMAC signature when secret is set and parses
// push and pull_request events
func (p *GitHubProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	var body []byte
	var err error
	if secret != "" {
		body, err = github.ValidatePayload(r, []byte(secret))
		if err != nil {
			p.log.Warn("Failed to validate webhook payload", zap.Error(err))
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "invalid webhook signature",
				Err:      err,
			}
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "failed to read webhook body",
				Err:      err,
			}
		}
	}

	eventType := github.WebHookType(r)
	if eventType != "push" && eventType != "pull_request" {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("unsupported event type: %s", eventType),
			Err:      provider.ErrUnsupported,
		}
	}
	parsed, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("failed to parse %s event", eventType),
			Err:      err,
		}
	}

	event := &provider.WebhookEvent{Provider: providerName, RawPayload: body}

	switch payload := parsed.(type) {
	case *github.PushEvent:
		event.Type = provider.EventTypePush
		event.Owner = payload.GetRepo().GetOwner().GetLogin()
		event.Repo = payload.GetRepo().GetName()
		event.Ref = strings.TrimPrefix(payload.GetRef(), "refs/heads/")
		event.CommitSHA = payload.GetAfter()
		event.BaseCommitSHA = payload.GetBefore()
		event.Sender = payload.GetSender().GetLogin()

	case *github.PullRequestEvent:
		pr := payload.GetPullRequest()
		event.Type = provider.EventTypePullRequest
		event.Owner = payload.GetRepo().GetOwner().GetLogin()
		event.Repo = payload.GetRepo().GetName()
		event.Ref = pr.GetHead().GetRef()
		event.BaseRef = pr.GetBase().GetRef()
		event.CommitSHA = pr.GetHead().GetSHA()
		event.BaseCommitSHA = pr.GetBase().GetSHA()
		event.PRNumber = pr.GetNumber()
		event.PREntityID = pr.GetID()
		event.Action = strings.ToLower(payload.GetAction())
		event.Sender = payload.GetSender().GetLogin()
		event.PRTitle = pr.GetTitle()
		event.PRDescription = pr.GetBody()

		p.log.Info("Parsed GitHub pull_request webhook",
			zap.String("action", event.Action),
			zap.String("owner", event.Owner),
			zap.String("repo", event.Repo),
			zap.Int("pr_number", event.PRNumber),
		)

	default:
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("unsupported event type: %s", eventType),
			Err:      provider.ErrUnsupported,
		}
	}

	return event, nil
}

// ValidateToken validates the GitHub token
func (p *GitHubProvider) ValidateToken(ctx context.Context) error {
	_, resp, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return wrapError("invalid token", resp, err)
	}
	return nil
}
