package orchestrator

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string       { return "github" }
func (m *mockProvider) GetBaseURL() string { return "https://github.com" }

func (m *mockProvider) GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error) {
	args := m.Called(ctx, owner, repo, number)
	pr, _ := args.Get(0).(*provider.PullRequest)
	return pr, args.Error(1)
}

func (m *mockProvider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	args := m.Called(ctx, owner, repo, number)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GetCommitRangeDiff(ctx context.Context, owner, repo, base, head string) (string, error) {
	args := m.Called(ctx, owner, repo, base, head)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CheckFileExistsInBranch(ctx context.Context, owner, repo, branch, path string) (bool, error) {
	args := m.Called(ctx, owner, repo, branch, path)
	return args.Bool(0), args.Error(1)
}

func (m *mockProvider) FindPullRequestForCommit(ctx context.Context, owner, repo, commit string) (int, error) {
	args := m.Called(ctx, owner, repo, commit)
	return args.Int(0), args.Error(1)
}

func (m *mockProvider) PostAnalysisResults(ctx context.Context, analysis *model.CodeAnalysis, project *model.Project, prNumber int, prEntityID int64) error {
	args := m.Called(ctx, analysis, project, prNumber, prEntityID)
	return args.Error(0)
}

func (m *mockProvider) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	return 0, provider.Unsupported("mock", "PostComment")
}

func (m *mockProvider) PostCommentReply(ctx context.Context, owner, repo string, prNumber int, parentID int64, body string) (int64, error) {
	return 0, provider.Unsupported("mock", "PostCommentReply")
}

func (m *mockProvider) ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*provider.Comment, error) {
	return nil, provider.Unsupported("mock", "ListComments")
}

func (m *mockProvider) DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error) {
	return 0, provider.Unsupported("mock", "DeleteCommentsByMarker")
}

func (m *mockProvider) DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error {
	return provider.Unsupported("mock", "DeleteComment")
}

func (m *mockProvider) UpdateComment(ctx context.Context, owner, repo string, prNumber int, commentID int64, body string) error {
	return provider.Unsupported("mock", "UpdateComment")
}

func (m *mockProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	return nil, provider.Unsupported("mock", "ParseWebhook")
}

func (m *mockProvider) ValidateToken(ctx context.Context) error { return nil }

type fakeProviders struct {
	vcs provider.Provider
}

func (f *fakeProviders) Get(name string) (provider.Provider, error) {
	if f.vcs == nil {
		return nil, provider.Unsupported(name, "Get")
	}
	return f.vcs, nil
}

func (f *fakeProviders) Token(string) string { return "tok" }

type mockAI struct {
	mock.Mock
}

func (m *mockAI) Invoke(ctx context.Context, req aiclient.Request, sink aiclient.Sink) (*aiclient.Result, error) {
	args := m.Called(ctx, req, sink)
	res, _ := args.Get(0).(*aiclient.Result)
	return res, args.Error(1)
}
