package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/reconcile"
)

func intPtr(v int) *int { return &v }

func TestBuilder_Defaults(t *testing.T) {
	req := NewBuilder().Build()
	assert.Equal(t, ModeFull, req.AnalysisMode)
	assert.Equal(t, "en", req.OutputLanguage)
	assert.Equal(t, "English", req.OutputLanguageName)
	assert.Equal(t, model.AnalysisTypePRReview, req.AnalysisType)
	assert.Empty(t, req.PreviousIssues)
}

func TestBuilder_Fields(t *testing.T) {
	project := &model.Project{ID: 3, Name: "api", Namespace: "team", Provider: "gitlab", Owner: "acme", Repo: "api", MaxAnalysisTokens: 9000}

	req := NewBuilder().
		WithProject(project).
		WithCredentials(Credentials{AccessToken: "tok"}).
		WithPullRequest(12, "Add cache", "body", "dev").
		WithBranches("feature", "main").
		WithCommitHash("abc").
		WithChangedFiles([]string{"a.go"}).
		WithRawDiff("+x").
		WithOutputLanguage("de-DE").
		Build()

	assert.Equal(t, uint(3), req.ProjectID)
	assert.Equal(t, "acme", req.ProjectWorkspace)
	assert.Equal(t, "team", req.ProjectNamespace)
	assert.Equal(t, "gitlab", req.VCSProvider)
	assert.Equal(t, "tok", req.Credentials.AccessToken)
	assert.Equal(t, 12, req.PullRequestID)
	assert.Equal(t, "feature", req.SourceBranch)
	assert.Equal(t, 9000, req.MaxAllowedTokens)
	assert.Equal(t, "de-DE", req.OutputLanguage)
	assert.Equal(t, "German (Germany)", req.OutputLanguageName)
}

func TestBuilder_InvalidLanguageKeepsPrevious(t *testing.T) {
	req := NewBuilder().WithOutputLanguage("fr").WithOutputLanguage("not a language!").Build()
	assert.Equal(t, "fr", req.OutputLanguage)
}

func TestBuilder_Incremental(t *testing.T) {
	b := NewBuilder().WithIncremental("old", "+delta")
	req := b.Build()
	assert.Equal(t, ModeIncremental, req.AnalysisMode)
	assert.Equal(t, "old", req.PreviousCommitHash)
	assert.Equal(t, "+delta", req.DeltaDiff)

	req = b.WithIncremental("old", "").Build()
	assert.Equal(t, ModeFull, req.AnalysisMode)
	assert.Empty(t, req.PreviousCommitHash)
}

func TestBuilder_BuildIsIsolated(t *testing.T) {
	files := []string{"a.go"}
	b := NewBuilder().WithChangedFiles(files)
	first := b.Build()

	files[0] = "mutated.go"
	b.WithCommitHash("later")

	assert.Equal(t, []string{"a.go"}, first.ChangedFiles)
	assert.Empty(t, first.CommitHash)
}

func TestBuilder_WithAllPrAnalysesData(t *testing.T) {
	// newest first, as returned by the store
	versions := []model.CodeAnalysis{
		{
			PRNumber: 5, PRVersion: 2, SourceBranchName: "feature",
			Issues: []model.CodeAnalysisIssue{
				{ID: 20, Severity: model.SeverityHigh, FilePath: "a.go", LineNumber: intPtr(10), Reason: "Null check missing"},
				{ID: 21, Severity: model.SeverityLow, FilePath: "b.go", Reason: "new in v2"},
			},
		},
		{
			PRNumber: 5, PRVersion: 1, SourceBranchName: "feature",
			Issues: []model.CodeAnalysisIssue{
				{ID: 10, Severity: model.SeverityHigh, FilePath: "a.go", LineNumber: intPtr(11), Reason: "null check missing ",
					Resolved: true, ResolvedDescription: "fixed", ResolvedCommitHash: "c1"},
			},
		},
	}

	req := NewBuilder().WithAllPrAnalysesData(versions).Build()
	require.Len(t, req.PreviousIssues, 2)

	merged := req.PreviousIssues[0]
	assert.Equal(t, "20", merged.ID)
	assert.Equal(t, 2, merged.Revision())
	assert.True(t, merged.IsResolved(), "resolution from v1 survives the v2 report")
	assert.Equal(t, "fixed", merged.ResolvedDescription)
	assert.Equal(t, "c1", merged.ResolvedByCommit)
	assert.Equal(t, "5", merged.PullRequestID)

	assert.Equal(t, "21", req.PreviousIssues[1].ID)
	assert.Equal(t, reconcile.StatusOpen, req.PreviousIssues[1].Status)
}

func TestBuilder_WithPreviousAnalysisData(t *testing.T) {
	prev := &model.CodeAnalysis{
		PRVersion: 3,
		Issues: []model.CodeAnalysisIssue{
			{ID: 1, Severity: model.SeverityMedium, FilePath: "x.go", Reason: "dup"},
			{ID: 2, Severity: model.SeverityMedium, FilePath: "x.go", Reason: "dup"},
		},
	}
	req := NewBuilder().WithPreviousAnalysisData(prev).WithPreviousAnalysisData(nil).Build()
	require.Len(t, req.PreviousIssues, 1)
	assert.Equal(t, 3, req.PreviousIssues[0].Revision())
}
