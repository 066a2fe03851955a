package store

import (
	"path/filepath"
	"testing"

	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// SetupTestDB creates a migrated SQLite database in a temp directory.
// It returns a Store instance and a cleanup function to call with defer.
func SetupTestDB(t *testing.T) (Store, func()) {
	t.Helper()
	database.ResetForTesting()

	path := filepath.Join(t.TempDir(), "test.db")
	if err := database.InitWithPath(path); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cleanup := func() {
		database.Close()
		database.ResetForTesting()
	}
	return NewStore(database.Get()), cleanup
}

// CreateTestProject creates a project with default values.
// Fields can be overridden by passing functions that modify the project.
func CreateTestProject(t *testing.T, s Store, overrides ...func(*model.Project)) *model.Project {
	t.Helper()
	project := &model.Project{
		Name:          "demo",
		Provider:      "github",
		Owner:         "acme",
		Repo:          t.Name(),
		DefaultBranch: "main",
	}
	for _, override := range overrides {
		override(project)
	}
	if err := s.Project().Save(t.Context(), project); err != nil {
		t.Fatalf("Failed to create test project: %v", err)
	}
	return project
}

// CreateTestAnalysis persists an analysis with the given issues.
func CreateTestAnalysis(t *testing.T, s Store, projectID uint, commit string, prNumber int, issues []model.CodeAnalysisIssue, overrides ...func(*model.CodeAnalysis)) *model.CodeAnalysis {
	t.Helper()
	analysis := &model.CodeAnalysis{
		ProjectID:        projectID,
		CommitHash:       commit,
		PRNumber:         prNumber,
		AnalysisType:     model.AnalysisTypePRReview,
		TargetBranchName: "main",
		SourceBranchName: "feature",
		Status:           model.AnalysisStatusAccepted,
		Comment:          "looks fine",
		PRVersion:        1,
	}
	analysis.SetIssues(issues)
	for _, override := range overrides {
		override(analysis)
	}
	if err := s.Analysis().Save(t.Context(), analysis); err != nil {
		t.Fatalf("Failed to create test analysis: %v", err)
	}
	return analysis
}
