// Package gitlab implements the VCS provider interfaces for GitLab.com and
// self-hosted GitLab instances.
package gitlab

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/output"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const providerName = "gitlab"

// GitLab API pagination configuration
const defaultPerPage = 100

// Default GitLab SaaS URL
const defaultGitLabURL = "https://gitlab.com"

func init() {
	provider.Register(providerName, NewProvider)
}

// GitLabProvider implements provider.Provider for GitLab
type GitLabProvider struct {
	client  *gitlab.Client
	baseURL string
	log     *zap.Logger
}

// NewProvider creates a new GitLab provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGitLabURL
	}
	log := logger.Named("gitlab")

	// GitLab authenticates with PRIVATE-TOKEN, so the transport carries no token
	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithHTTPClient(provider.NewHTTPClient("", opts.InsecureSkipVerify)),
	}
	if baseURL != defaultGitLabURL {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(baseURL))
	}
	if opts.InsecureSkipVerify {
		log.Warn("GitLab client configured with InsecureSkipVerify=true, SSL certificate verification is disabled")
	}

	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to create gitlab client",
			Err:      err,
		}
	}

	return &GitLabProvider{client: client, baseURL: baseURL, log: log}, nil
}

// Name returns the provider name
func (p *GitLabProvider) Name() string {
	return providerName
}

// GetBaseURL returns the base URL of the provider
func (p *GitLabProvider) GetBaseURL() string {
	return p.baseURL
}

// projectPath returns the GitLab project path; owner may itself be a
// nested group path
func projectPath(owner, repo string) string {
	return owner + "/" + repo
}

func wrapError(message string, resp *gitlab.Response, err error) error {
	pe := &provider.ProviderError{Provider: providerName, Message: message, Err: err}
	if resp != nil && resp.Response != nil {
		pe.StatusCode = resp.StatusCode
	}
	return pe
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound
}

// GetPullRequest retrieves merge request details
func (p *GitLabProvider) GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error) {
	mr, resp, err := p.client.MergeRequests.GetMergeRequest(projectPath(owner, repo), int64(number), nil, gitlab.WithContext(ctx))
	if err != nil {
		p.log.Error("Failed to get merge request",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("number", number),
		)
		return nil, wrapError("failed to get merge request", resp, err)
	}

	return &provider.PullRequest{
		Number:      int(mr.IID),
		EntityID:    int64(mr.ID),
		Title:       mr.Title,
		Description: mr.Description,
		State:       mr.State,
		HeadBranch:  mr.SourceBranch,
		HeadSHA:     mr.SHA,
		BaseBranch:  mr.TargetBranch,
		BaseSHA:     mr.DiffRefs.BaseSha,
		Author:      mr.Author.Username,
		URL:         mr.WebURL,
	}, nil
}

// GetPullRequestDiff assembles a unified diff from the per-file diffs of a
// merge request
func (p *GitLabProvider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	pid := projectPath(owner, repo)
	opts := &gitlab.ListMergeRequestDiffsOptions{}
	opts.PerPage = defaultPerPage

	var sb strings.Builder
	for {
		diffs, resp, err := p.client.MergeRequests.ListMergeRequestDiffs(pid, int64(number), opts, gitlab.WithContext(ctx))
		if err != nil {
			return "", wrapError("failed to list merge request diffs", resp, err)
		}
		for _, d := range diffs {
			writeFileDiff(&sb, d.OldPath, d.NewPath, d.Diff)
		}
		if resp.NextPage == 0 {
			return sb.String(), nil
		}
		opts.Page = resp.NextPage
	}
}

// GetCommitRangeDiff returns the diff between two commits
func (p *GitLabProvider) GetCommitRangeDiff(ctx context.Context, owner, repo, base, head string) (string, error) {
	cmp, resp, err := p.client.Repositories.Compare(projectPath(owner, repo), &gitlab.CompareOptions{
		From: gitlab.Ptr(base),
		To:   gitlab.Ptr(head),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", wrapError("failed to compare commits", resp, err)
	}

	var sb strings.Builder
	for _, d := range cmp.Diffs {
		writeFileDiff(&sb, d.OldPath, d.NewPath, d.Diff)
	}
	return sb.String(), nil
}

// writeFileDiff prefixes a GitLab hunk body with git file headers
func writeFileDiff(sb *strings.Builder, oldPath, newPath, body string) {
	fmt.Fprintf(sb, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n", oldPath, newPath, oldPath, newPath)
	sb.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
}

// CheckFileExistsInBranch reports whether path exists on branch
func (p *GitLabProvider) CheckFileExistsInBranch(ctx context.Context, owner, repo, branch, path string) (bool, error) {
	_, resp, err := p.client.RepositoryFiles.GetFileMetaData(projectPath(owner, repo), path, &gitlab.GetFileMetaDataOptions{
		Ref: gitlab.Ptr(branch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return false, nil
		}
		return false, wrapError("failed to get file metadata", resp, err)
	}
	return true, nil
}

// FindPullRequestForCommit returns the first opened MR containing commit, or 0
func (p *GitLabProvider) FindPullRequestForCommit(ctx context.Context, owner, repo, commit string) (int, error) {
	mrs, resp, err := p.client.Commits.ListMergeRequestsByCommit(projectPath(owner, repo), commit, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return 0, nil
		}
		return 0, wrapError("failed to list merge requests for commit", resp, err)
	}
	for _, mr := range mrs {
		if mr.State == "opened" {
			return int(mr.IID), nil
		}
	}
	return 0, nil
}

// PostAnalysisResults replaces the analysis summary note on the MR. Notes
// are addressed by IID, so prEntityID is unused.
func (p *GitLabProvider) PostAnalysisResults(ctx context.Context, analysis *model.CodeAnalysis, project *model.Project, prNumber int, prEntityID int64) error {
	body := output.RenderAnalysis(analysis, project, output.CommentOptions())
	_, err := output.PublishSummary(ctx, p, project.Owner, project.Repo, prNumber, consts.CommentMarker, body)
	return err
}

// PostComment posts a note on a MR and returns its id
func (p *GitLabProvider) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	note, resp, err := p.client.Notes.CreateMergeRequestNote(projectPath(owner, repo), int64(prNumber), &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		p.log.Error("Failed to post MR comment",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("mr", prNumber),
		)
		return 0, wrapError("failed to post MR comment", resp, err)
	}
	return int64(note.ID), nil
}

// PostCommentReply adds a note to the discussion that contains parentID
func (p *GitLabProvider) PostCommentReply(ctx context.Context, owner, repo string, prNumber int, parentID int64, body string) (int64, error) {
	pid := projectPath(owner, repo)
	opts := &gitlab.ListMergeRequestDiscussionsOptions{}
	opts.PerPage = defaultPerPage

	for {
		discussions, resp, err := p.client.Discussions.ListMergeRequestDiscussions(pid, int64(prNumber), opts, gitlab.WithContext(ctx))
		if err != nil {
			return 0, wrapError("failed to list MR discussions", resp, err)
		}
		for _, d := range discussions {
			for _, n := range d.Notes {
				if int64(n.ID) != parentID {
					continue
				}
				note, resp, err := p.client.Discussions.AddMergeRequestDiscussionNote(pid, int64(prNumber), d.ID,
					&gitlab.AddMergeRequestDiscussionNoteOptions{Body: &body}, gitlab.WithContext(ctx))
				if err != nil {
					return 0, wrapError("failed to reply to discussion", resp, err)
				}
				return int64(note.ID), nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return 0, &provider.ProviderError{
		Provider: providerName,
		Message:  fmt.Sprintf("note %d not found in any discussion", parentID),
	}
}

// ListComments lists the user notes on a MR, skipping system notes
func (p *GitLabProvider) ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*provider.Comment, error) {
	pid := projectPath(owner, repo)
	opts := &gitlab.ListMergeRequestNotesOptions{ListOptions: gitlab.ListOptions{PerPage: defaultPerPage}}

	var result []*provider.Comment
	for {
		notes, resp, err := p.client.Notes.ListMergeRequestNotes(pid, int64(prNumber), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, wrapError("failed to list MR comments", resp, err)
		}
		for _, note := range notes {
			if note.System {
				continue
			}
			createdAt := ""
			if note.CreatedAt != nil {
				createdAt = note.CreatedAt.Format("2006-01-02T15:04:05Z")
			}
			result = append(result, &provider.Comment{
				ID:        int64(note.ID),
				Body:      note.Body,
				Author:    note.Author.Username,
				CreatedAt: createdAt,
			})
		}
		if resp.NextPage == 0 {
			return result, nil
		}
		opts.Page = resp.NextPage
	}
}

// DeleteCommentsByMarker deletes every MR note containing marker
func (p *GitLabProvider) DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error) {
	return provider.DeleteCommentsContaining(ctx, p, owner, repo, prNumber, marker)
}

// DeleteComment deletes a MR note by ID
func (p *GitLabProvider) DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error {
	resp, err := p.client.Notes.DeleteMergeRequestNote(projectPath(owner, repo), int64(prNumber), commentID, gitlab.WithContext(ctx))
	if err != nil {
		return wrapError("failed to delete MR comment", resp, err)
	}
	return nil
}

// UpdateComment updates an existing MR note by ID
func (p *GitLabProvider) UpdateComment(ctx context.Context, owner, repo string, prNumber int, commentID int64, body string) error {
	_, resp, err := p.client.Notes.UpdateMergeRequestNote(projectPath(owner, repo), int64(prNumber), commentID, &gitlab.UpdateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return wrapError("failed to update MR comment", resp, err)
	}
	return nil
}

// ParseWebhook authenticates X-Gitlab-Token when secret is set and parses
// push and merge request events
func (p *GitLabProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to read webhook body",
			Err:      err,
		}
	}

	if secret != "" {
		token := r.Header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			p.log.Warn("Invalid webhook token received", zap.Int("received_length", len(token)))
			return nil, &provider.ProviderError{
				Provider: providerName,
				Message:  "invalid webhook token",
			}
		}
	}

	// fall back to object_kind when the event header is missing
	eventType := r.Header.Get("X-Gitlab-Event")
	if eventType == "" {
		var kind struct {
			ObjectKind string `json:"object_kind"`
		}
		if err := json.Unmarshal(body, &kind); err == nil {
			switch kind.ObjectKind {
			case "merge_request":
				eventType = "Merge Request Hook"
			case "push":
				eventType = "Push Hook"
			}
		}
	}

	event := &provider.WebhookEvent{Provider: providerName, RawPayload: body}

	switch eventType {
	case "Push Hook":
		return p.parsePushEvent(body, event)
	case "Merge Request Hook":
		return p.parseMergeRequestEvent(body, event)
	default:
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("unsupported event type: %s", eventType),
			Err:      provider.ErrUnsupported,
		}
	}
}

// splitProjectPath splits "group/sub/project" into owner "group/sub" and
// repo "project"
func splitProjectPath(path string) (string, string, error) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return "", "", &provider.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("invalid project path: %q", path),
		}
	}
	return path[:idx], path[idx+1:], nil
}

func (p *GitLabProvider) parsePushEvent(body []byte, event *provider.WebhookEvent) (*provider.WebhookEvent, error) {
	var payload struct {
		Ref      string `json:"ref"`
		Before   string `json:"before"`
		After    string `json:"after"`
		UserName string `json:"user_username"`
		Project  struct {
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to parse push event",
			Err:      err,
		}
	}

	owner, repo, err := splitProjectPath(payload.Project.PathWithNamespace)
	if err != nil {
		return nil, err
	}

	event.Type = provider.EventTypePush
	event.Owner = owner
	event.Repo = repo
	event.Ref = strings.TrimPrefix(payload.Ref, "refs/heads/")
	event.CommitSHA = payload.After
	event.BaseCommitSHA = payload.Before
	event.Sender = payload.UserName
	return event, nil
}

func (p *GitLabProvider) parseMergeRequestEvent(body []byte, event *provider.WebhookEvent) (*provider.WebhookEvent, error) {
	var payload struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Project struct {
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
		ObjectAttributes struct {
			ID           int64  `json:"id"`
			IID          int    `json:"iid"`
			Title        string `json:"title"`
			Description  string `json:"description"`
			SourceBranch string `json:"source_branch"`
			TargetBranch string `json:"target_branch"`
			Action       string `json:"action"`
			LastCommit   struct {
				ID string `json:"id"`
			} `json:"last_commit"`
			DiffRefs struct {
				BaseSha string `json:"base_sha"`
			} `json:"diff_refs"`
		} `json:"object_attributes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Message:  "failed to parse merge request event",
			Err:      err,
		}
	}

	owner, repo, err := splitProjectPath(payload.Project.PathWithNamespace)
	if err != nil {
		return nil, err
	}

	attrs := payload.ObjectAttributes
	event.Type = provider.EventTypePullRequest
	event.Owner = owner
	event.Repo = repo
	event.Ref = attrs.SourceBranch
	event.BaseRef = attrs.TargetBranch
	event.CommitSHA = attrs.LastCommit.ID
	event.BaseCommitSHA = attrs.DiffRefs.BaseSha
	event.PRNumber = attrs.IID
	event.PREntityID = attrs.ID
	event.Action = normalizeGitLabAction(attrs.Action)
	event.Sender = payload.User.Username
	event.PRTitle = attrs.Title
	event.PRDescription = attrs.Description

	p.log.Info("Parsed GitLab merge request webhook",
		zap.String("action", event.Action),
		zap.String("original_action", attrs.Action),
		zap.String("owner", event.Owner),
		zap.String("repo", event.Repo),
		zap.Int("mr_number", event.PRNumber),
	)
	return event, nil
}

// ValidateToken validates the GitLab token by fetching current user
func (p *GitLabProvider) ValidateToken(ctx context.Context) error {
	user, resp, err := p.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return wrapError("invalid token", resp, err)
	}
	p.log.Debug("GitLab token validated", zap.String("username", user.Username))
	return nil
}

// normalizeGitLabAction maps GitLab MR action names to the GitHub spelling:
// open, update, reopen, close, merge become opened, synchronize, reopened,
// closed, merged
func normalizeGitLabAction(action string) string {
	switch strings.ToLower(action) {
	case "open":
		return provider.PREventActionOpened
	case "update":
		return provider.PREventActionSynchronize
	case "reopen":
		return provider.PREventActionReopened
	case "close", "closed":
		return "closed"
	case "merge", "merged":
		return "merged"
	default:
		return strings.ToLower(action)
	}
}
