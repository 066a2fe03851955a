package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

func intPtr(i int) *int { return &i }

func TestAnalysisStore_FindCodeAnalysis(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	created := CreateTestAnalysis(t, s, project.ID, "abc", 42, []model.CodeAnalysisIssue{
		{Severity: model.SeverityHigh, FilePath: "a.go", LineNumber: intPtr(10), Reason: "nil deref"},
		{Severity: model.SeverityLow, FilePath: "b.go", Reason: "naming"},
	})

	found, err := s.Analysis().FindCodeAnalysis(ctx, project.ID, "abc", 42)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	require.Len(t, found.Issues, 2)
	assert.Equal(t, "a.go", found.Issues[0].FilePath)
	assert.Equal(t, 2, found.TotalIssues)
	assert.Equal(t, 1, found.HighSeverityCount)

	missing, err := s.Analysis().FindCodeAnalysis(ctx, project.ID, "abc", 43)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAnalysisStore_UniqueCacheKey(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	project := CreateTestProject(t, s)

	CreateTestAnalysis(t, s, project.ID, "abc", 1, nil)
	dup := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "abc", PRNumber: 1, AnalysisType: model.AnalysisTypePRReview}
	assert.Error(t, s.Analysis().Save(context.Background(), dup))
}

func TestAnalysisStore_VersionsNewestFirst(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	for i, commit := range []string{"c1", "c2", "c3"} {
		version := i + 1
		CreateTestAnalysis(t, s, project.ID, commit, 7, []model.CodeAnalysisIssue{{Severity: model.SeverityInfo, FilePath: commit}},
			func(a *model.CodeAnalysis) { a.PRVersion = version })
	}
	CreateTestAnalysis(t, s, project.ID, "other", 8, nil)

	versions, err := s.Analysis().FindAllAnalysisVersions(ctx, project.ID, 7)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{versions[0].PRVersion, versions[1].PRVersion, versions[2].PRVersion})
	assert.Len(t, versions[0].Issues, 1)
}

func TestAnalysisStore_SaveAllocatesPRVersion(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	CreateTestAnalysis(t, s, project.ID, "c1", 7, nil, func(a *model.CodeAnalysis) { a.PRVersion = 3 })
	CreateTestAnalysis(t, s, project.ID, "other", 8, nil)

	a := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "c2", PRNumber: 7, AnalysisType: model.AnalysisTypePRReview,
		Issues: []model.CodeAnalysisIssue{{Severity: model.SeverityLow, FilePath: "a.go"}}}
	require.NoError(t, s.Analysis().Save(ctx, a))
	assert.Equal(t, 4, a.PRVersion)
	assert.NotZero(t, a.Issues[0].ID)

	first := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "c1", PRNumber: 9, AnalysisType: model.AnalysisTypePRReview}
	require.NoError(t, s.Analysis().Save(ctx, first))
	assert.Equal(t, 1, first.PRVersion)
}

func TestAnalysisStore_UniquePRVersion(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	project := CreateTestProject(t, s)

	CreateTestAnalysis(t, s, project.ID, "c1", 7, nil, func(a *model.CodeAnalysis) { a.PRVersion = 1 })
	dup := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "c2", PRNumber: 7, PRVersion: 1, AnalysisType: model.AnalysisTypePRReview}
	assert.Error(t, s.Analysis().Save(context.Background(), dup))
}

func TestAnalysisStore_ConcurrentSavesGetDistinctVersions(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Analysis().Save(ctx, &model.CodeAnalysis{
				ProjectID:    project.ID,
				CommitHash:   fmt.Sprintf("c%d", i),
				PRNumber:     42,
				AnalysisType: model.AnalysisTypePRReview,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	versions, err := s.Analysis().FindAllAnalysisVersions(ctx, project.ID, 42)
	require.NoError(t, err)
	got := make([]int, 0, len(versions))
	for _, v := range versions {
		got = append(got, v.PRVersion)
	}
	assert.Equal(t, []int{4, 3, 2, 1}, got)
}

func TestAnalysisStore_SaveRetriesTakenVersion(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	project := CreateTestProject(t, s)
	CreateTestAnalysis(t, s, project.ID, "c1", 9, nil)

	// a competing row takes the version between this save's read and its insert
	taken := false
	db := database.Get()
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:take_version", func(tx *gorm.DB) {
		a, ok := tx.Statement.Dest.(*model.CodeAnalysis)
		if !ok || taken || a.CommitHash != "c3" {
			return
		}
		taken = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO code_analyses (project_id, commit_hash, pr_number, analysis_type, status, pr_version) VALUES (?, ?, ?, ?, ?, ?)",
			project.ID, "c2", 9, model.AnalysisTypePRReview, model.AnalysisStatusAccepted, a.PRVersion)
	}))

	a := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "c3", PRNumber: 9, AnalysisType: model.AnalysisTypePRReview}
	require.NoError(t, s.Analysis().Save(context.Background(), a))
	assert.True(t, taken)
	assert.Equal(t, 2, a.PRVersion)
	assert.NotZero(t, a.ID)
}

func TestAnalysisStore_FindByDiffFingerprint(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	CreateTestAnalysis(t, s, project.ID, "abc", 1, nil, func(a *model.CodeAnalysis) { a.DiffFingerprint = "fp-1" })

	found, err := s.Analysis().FindByDiffFingerprint(ctx, project.ID, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "abc", found.CommitHash)

	none, err := s.Analysis().FindByDiffFingerprint(ctx, project.ID, "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAnalysisStore_ListByProject(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	CreateTestAnalysis(t, s, project.ID, "a", 1, nil)
	CreateTestAnalysis(t, s, project.ID, "b", 1, nil, func(a *model.CodeAnalysis) { a.PRVersion = 2 })
	CreateTestAnalysis(t, s, project.ID, "c", 2, nil)

	all, total, err := s.Analysis().ListByProject(ctx, project.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	pr1, total, err := s.Analysis().ListByProject(ctx, project.ID, intPtr(1), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, pr1, 2)

	got, err := s.Analysis().GetByID(ctx, pr1[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pr1[0].CommitHash, got.CommitHash)
}

func TestStore_Transaction(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	project := CreateTestProject(t, s)

	err := s.Transaction(func(tx Store) error {
		a := &model.CodeAnalysis{ProjectID: project.ID, CommitHash: "tx", PRNumber: 3, AnalysisType: model.AnalysisTypePRReview}
		if err := tx.Analysis().Save(ctx, a); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	found, err := s.Analysis().FindCodeAnalysis(ctx, project.ID, "tx", 3)
	require.NoError(t, err)
	assert.Nil(t, found, "rolled back")
}

func TestProjectStore(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := &model.Project{ID: 5, Name: "api", Provider: "gitlab", Owner: "group/sub", Repo: "api"}
	require.NoError(t, s.Project().Save(ctx, p))

	p.DefaultBranch = "develop"
	require.NoError(t, s.Project().Save(ctx, p))

	got, err := s.Project().GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "develop", got.DefaultBranch)

	byRepo, err := s.Project().GetByRepo(ctx, "gitlab", "group/sub", "api")
	require.NoError(t, err)
	assert.Equal(t, uint(5), byRepo.ID)

	list, err := s.Project().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
