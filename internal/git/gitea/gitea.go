// Package gitea implements the VCS provider interfaces for Gitea.com and
// self-hosted Gitea instances using the Gitea Go SDK.
package gitea

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"code.gitea.io/sdk/gitea"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/output"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const providerName = "gitea"

// Gitea API pagination configuration
const defaultPerPage = 50

// Default Gitea cloud URL
const defaultGiteaURL = "https://gitea.com"

func init() {
	provider.Register(providerName, NewProvider)
}

// GiteaProvider implements provider.Provider for Gitea
type GiteaProvider struct {
	client  *gitea.Client
	baseURL string
	log     *zap.Logger
}

// NewProvider creates a new Gitea provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGiteaURL
	}
	log := logger.Named("gitea")

	// server version probing is skipped so construction never touches the network
	client, err := gitea.NewClient(baseURL,
		gitea.SetToken(opts.Token),
		gitea.SetHTTPClient(provider.NewHTTPClient("", opts.InsecureSkipVerify)),
		gitea.SetGiteaVersion(""),
	)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to create gitea client",
			Err:      err,
		}
	}
	if opts.InsecureSkipVerify {
		log.Warn("Gitea client configured with InsecureSkipVerify=true, SSL certificate verification is disabled")
	}

	return &GiteaProvider{client: client, baseURL: baseURL, log: log}, nil
}

// Name returns the provider name
func (p *GiteaProvider) Name() string {
	return providerName
}

// GetBaseURL returns the base URL of the provider
func (p *GiteaProvider) GetBaseURL() string {
	return p.baseURL
}

func wrapError(message string, resp *gitea.Response, err error) error {
	pe := &provider.ProviderError{Provider: providerName, Message: message, Err: err}
	if resp != nil && resp.Response != nil {
		pe.StatusCode = resp.StatusCode
	}
	return pe
}

func isNotFound(resp *gitea.Response) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound
}

func convertPR(pr *gitea.PullRequest) *provider.PullRequest {
	out := &provider.PullRequest{
		Number:      int(pr.Index),
		EntityID:    pr.ID,
		Title:       pr.Title,
		Description: pr.Body,
		State:       string(pr.State),
		BaseSHA:     pr.MergeBase,
		URL:         pr.HTMLURL,
	}
	if pr.Head != nil {
		out.HeadBranch = pr.Head.Ref
		out.HeadSHA = pr.Head.Sha
	}
	if pr.Base != nil {
		out.BaseBranch = pr.Base.Ref
		if out.BaseSHA == "" {
			out.BaseSHA = pr.Base.Sha
		}
	}
	if pr.Poster != nil {
		out.Author = pr.Poster.UserName
	}
	return out
}

// GetPullRequest retrieves pull request details
func (p *GiteaProvider) GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error) {
	pr, resp, err := p.client.GetPullRequest(owner, repo, int64(number))
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

// GetPullRequestDiff returns the .diff rendering of a PR
func (p *GiteaProvider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, resp, err := p.client.GetPullRequestDiff(owner, repo, int64(number), gitea.PullRequestDiffOptions{})
	if err != nil {
		return "", wrapError("failed to get pull request diff", resp, err)
	}
	return string(diff), nil
}

// GetCommitRangeDiff is not exposed by the Gitea API
func (p *GiteaProvider) GetCommitRangeDiff(ctx context.Context, owner, repo, base, head string) (string, error) {
	return "", provider.Unsupported(providerName, "commit range diff")
}

// CheckFileExistsInBranch reports whether path exists on branch
func (p *GiteaProvider) CheckFileExistsInBranch(ctx context.Context, owner, repo, branch, path string) (bool, error) {
	_, resp, err := p.client.GetContents(owner, repo, branch, path)
	if err != nil {
		if isNotFound(resp) {
			return false, nil
		}
		return false, wrapError("failed to get contents", resp, err)
	}
	return true, nil
}

// FindPullRequestForCommit scans open PRs for one whose head is commit
func (p *GiteaProvider) FindPullRequestForCommit(ctx context.Context, owner, repo, commit string) (int, error) {
	for page := 1; ; page++ {
		prs, resp, err := p.client.ListRepoPullRequests(owner, repo, gitea.ListPullRequestsOptions{
			State:       gitea.StateOpen,
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return 0, wrapError("failed to list pull requests", resp, err)
		}
		for _, pr := range prs {
			if pr.Head != nil && pr.Head.Sha == commit {
				return int(pr.Index), nil
			}
		}
		if len(prs) < defaultPerPage {
			return 0, nil
		}
	}
}

// PostAnalysisResults replaces the analysis summary comment on the PR
func (p *GiteaProvider) PostAnalysisResults(ctx context.Context, analysis *model.CodeAnalysis, project *model.Project, prNumber int, prEntityID int64) error {
	body := output.RenderAnalysis(analysis, project, output.CommentOptions())
	_, err := output.PublishSummary(ctx, p, project.Owner, project.Repo, prNumber, consts.CommentMarker, body)
	return err
}

// PostComment posts an issue comment on a PR and returns its id
func (p *GiteaProvider) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	c, resp, err := p.client.CreateIssueComment(owner, repo, int64(prNumber), gitea.CreateIssueCommentOption{
		Body: body,
	})
	if err != nil {
		p.log.Error("Failed to post PR comment",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("pr", prNumber),
		)
		return 0, wrapError("failed to post PR comment", resp, err)
	}
	return c.ID, nil
}

// PostCommentReply is not supported; Gitea issue comments are flat
func (p *GiteaProvider) PostCommentReply(ctx context.Context, owner, repo string, prNumber int, parentID int64, body string) (int64, error) {
	return 0, provider.Unsupported(providerName, "comment replies")
}

// ListComments lists the issue comments on a PR
func (p *GiteaProvider) ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*provider.Comment, error) {
	var result []*provider.Comment
	for page := 1; ; page++ {
		comments, resp, err := p.client.ListIssueComments(owner, repo, int64(prNumber), gitea.ListIssueCommentOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return nil, wrapError("failed to list PR comments", resp, err)
		}
		for _, c := range comments {
			author := ""
			if c.Poster != nil {
				author = c.Poster.UserName
			}
			createdAt := ""
			if !c.Created.IsZero() {
				createdAt = c.Created.Format("2006-01-02T15:04:05Z")
			}
			result = append(result, &provider.Comment{
				ID:        c.ID,
				Body:      c.Body,
				Author:    author,
				CreatedAt: createdAt,
			})
		}
		if len(comments) < defaultPerPage {
			return result, nil
		}
	}
}

// DeleteCommentsByMarker deletes every PR comment containing marker
func (p *GiteaProvider) DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error) {
	return provider.DeleteCommentsContaining(ctx, p, owner, repo, prNumber, marker)
}

// DeleteComment deletes a comment by ID; Gitea comment ids are global to the repo
func (p *GiteaProvider) DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error {
	resp, err := p.client.DeleteIssueComment(owner, repo, commentID)
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
func (p *GiteaProvider) UpdateComment(ctx context.Context, owner, repo string, prNumber int, commentID int64, body string) error {
	_, resp, err := p.client.EditIssueComment(owner, repo, commentID, gitea.EditIssueCommentOption{
		Body: body,
	})
	if err != nil {
		return wrapError("failed to update comment", resp, err)
	}
	return nil
}

// ParseWebhook verifies X-Gitea-Signature (hex HMAC-SHA256) when secret is
// set and parses push and pull_request events
func (p *GiteaProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to read webhook body",
			Err:      err,
		}
	}

	if secret != "" {
		signature := r.Header.Get("X-Gitea-Signature")
		if signature == "" {
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "missing webhook signature header (X-Gitea-Signature)",
			}
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expectedSig := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
			p.log.Warn("Invalid webhook signature received", zap.Int("received_length", len(signature)))
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "invalid webhook signature",
			}
		}
	}

	event := &provider.WebhookEvent{Provider: providerName, RawPayload: body}

	switch eventType := r.Header.Get("X-Gitea-Event"); eventType {
	case "push":
		return p.parsePushEvent(body, event)
	case "pull_request":
		return p.parsePullRequestEvent(body, event)
	default:
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("unsupported event type: %s", eventType),
			Err:      provider.ErrUnsupported,
		}
	}
}

type hookRepository struct {
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Name string `json:"name"`
}

type hookSender struct {
	Login string `json:"login"`
}

func (p *GiteaProvider) parsePushEvent(body []byte, event *provider.WebhookEvent) (*provider.WebhookEvent, error) {
	var payload struct {
		Ref        string         `json:"ref"`
		Before     string         `json:"before"`
		After      string         `json:"after"`
		Sender     hookSender     `json:"sender"`
		Repository hookRepository `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to parse push event",
			Err:      err,
		}
	}

	event.Type = provider.EventTypePush
	event.Owner = payload.Repository.Owner.Login
	event.Repo = payload.Repository.Name
	event.Ref = strings.TrimPrefix(payload.Ref, "refs/heads/")
	event.CommitSHA = payload.After
	event.BaseCommitSHA = payload.Before
	event.Sender = payload.Sender.Login
	return event, nil
}

func (p *GiteaProvider) parsePullRequestEvent(body []byte, event *provider.WebhookEvent) (*provider.WebhookEvent, error) {
	var payload struct {
		Action      string `json:"action"`
		Number      int64  `json:"number"`
		PullRequest struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Body      string `json:"body"`
			MergeBase string `json:"merge_base"`
			Head      struct {
				Ref string `json:"ref"`
				Sha string `json:"sha"`
			} `json:"head"`
			Base struct {
				Ref string `json:"ref"`
				Sha string `json:"sha"`
			} `json:"base"`
		} `json:"pull_request"`
		Sender     hookSender     `json:"sender"`
		Repository hookRepository `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to parse pull_request event",
			Err:      err,
		}
	}

	pr := payload.PullRequest
	event.Type = provider.EventTypePullRequest
	event.Owner = payload.Repository.Owner.Login
	event.Repo = payload.Repository.Name
	event.Ref = pr.Head.Ref
	event.BaseRef = pr.Base.Ref
	event.CommitSHA = pr.Head.Sha
	event.PRNumber = int(payload.Number)
	event.PREntityID = pr.ID
	event.Action = normalizeGiteaAction(payload.Action)
	event.Sender = payload.Sender.Login
	event.PRTitle = pr.Title
	event.PRDescription = pr.Body
	event.BaseCommitSHA = pr.MergeBase
	if event.BaseCommitSHA == "" {
		event.BaseCommitSHA = pr.Base.Sha
	}

	p.log.Info("Parsed Gitea pull_request webhook",
		zap.String("action", event.Action),
		zap.String("original_action", payload.Action),
		zap.String("owner", event.Owner),
		zap.String("repo", event.Repo),
		zap.Int("pr_number", event.PRNumber),
	)
	return event, nil
}

// ValidateToken validates the Gitea token by fetching current user
func (p *GiteaProvider) ValidateToken(ctx context.Context) error {
	user, resp, err := p.client.GetMyUserInfo()
	if err != nil {
		return wrapError("invalid token", resp, err)
	}
	p.log.Debug("Gitea token validated", zap.String("username", user.UserName))
	return nil
}

// normalizeGiteaAction maps Gitea PR actions to the GitHub spelling.
// Gitea reports new commits as "synchronized".
func normalizeGiteaAction(action string) string {
	switch strings.ToLower(action) {
	case "opened":
		return provider.PREventActionOpened
	case "synchronized", "synchronize":
		return provider.PREventActionSynchronize
	case "reopened":
		return provider.PREventActionReopened
	default:
		return strings.ToLower(action)
	}
}
