package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// AnalysisStore defines operations for CodeAnalysis and its issues.
// Find* methods return (nil, nil) when nothing matches.
type AnalysisStore interface {
	// FindCodeAnalysis looks up the cached analysis for (project, commit, PR).
	FindCodeAnalysis(ctx context.Context, projectID uint, commitHash string, prNumber int) (*model.CodeAnalysis, error)

	// FindByDiffFingerprint returns the newest analysis of the project whose diff
	// fingerprint matches.
	FindByDiffFingerprint(ctx context.Context, projectID uint, fingerprint string) (*model.CodeAnalysis, error)

	// FindAllAnalysisVersions returns every analysis of a PR, newest version first.
	FindAllAnalysisVersions(ctx context.Context, projectID uint, prNumber int) ([]model.CodeAnalysis, error)

	// Save persists an analysis together with its issues. Counters are
	// recomputed from the issues before writing. A new analysis with PRVersion 0
	// gets the next version of its PR, allocated in the insert transaction.
	Save(ctx context.Context, analysis *model.CodeAnalysis) error

	GetByID(ctx context.Context, id uint) (*model.CodeAnalysis, error)
	ListByProject(ctx context.Context, projectID uint, prNumber *int, limit, offset int) ([]model.CodeAnalysis, int64, error)
}

type analysisStore struct {
	db *gorm.DB
}

func newAnalysisStore(db *gorm.DB) AnalysisStore {
	return &analysisStore{db: db}
}

func (s *analysisStore) FindCodeAnalysis(ctx context.Context, projectID uint, commitHash string, prNumber int) (*model.CodeAnalysis, error) {
	var analysis model.CodeAnalysis
	err := s.db.WithContext(ctx).
		Preload("Issues", orderIssues).
		Where("project_id = ? AND commit_hash = ? AND pr_number = ?", projectID, commitHash, prNumber).
		First(&analysis).Error
	return optional(&analysis, err)
}

func (s *analysisStore) FindByDiffFingerprint(ctx context.Context, projectID uint, fingerprint string) (*model.CodeAnalysis, error) {
	if fingerprint == "" {
		return nil, nil
	}
	var analysis model.CodeAnalysis
	err := s.db.WithContext(ctx).
		Preload("Issues", orderIssues).
		Where("project_id = ? AND diff_fingerprint = ?", projectID, fingerprint).
		Order("created_at DESC, id DESC").
		First(&analysis).Error
	return optional(&analysis, err)
}

func (s *analysisStore) FindAllAnalysisVersions(ctx context.Context, projectID uint, prNumber int) ([]model.CodeAnalysis, error) {
	var analyses []model.CodeAnalysis
	err := s.db.WithContext(ctx).
		Preload("Issues", orderIssues).
		Where("project_id = ? AND pr_number = ?", projectID, prNumber).
		Order("pr_version DESC, id DESC").
		Find(&analyses).Error
	return analyses, err
}

// maxVersionAttempts bounds retries when a concurrent writer takes the
// version computed for a new analysis
const maxVersionAttempts = 5

func (s *analysisStore) Save(ctx context.Context, analysis *model.CodeAnalysis) error {
	analysis.RecomputeCounters()
	db := s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true})
	if analysis.ID != 0 || analysis.PRVersion != 0 {
		return db.Save(analysis).Error
	}

	var err error
	for attempt := 1; attempt <= maxVersionAttempts; attempt++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			version, err := nextPRVersion(tx, analysis.ProjectID, analysis.PRNumber)
			if err != nil {
				return err
			}
			analysis.PRVersion = version
			return tx.Create(analysis).Error
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
		resetForInsert(analysis)
	}
	if err != nil {
		resetForInsert(analysis)
	}
	return err
}

func nextPRVersion(tx *gorm.DB, projectID uint, prNumber int) (int, error) {
	var maxVersion int
	err := tx.Model(&model.CodeAnalysis{}).
		Where("project_id = ? AND pr_number = ?", projectID, prNumber).
		Select("COALESCE(MAX(pr_version), 0)").
		Row().
		Scan(&maxVersion)
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// resetForInsert clears what a rolled back insert assigned
func resetForInsert(analysis *model.CodeAnalysis) {
	analysis.ID = 0
	analysis.PRVersion = 0
	for i := range analysis.Issues {
		analysis.Issues[i].ID = 0
		analysis.Issues[i].AnalysisID = 0
	}
}

// isUniqueViolation reports a unique constraint failure. Drivers that do not
// translate errors are matched by message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *analysisStore) GetByID(ctx context.Context, id uint) (*model.CodeAnalysis, error) {
	var analysis model.CodeAnalysis
	if err := s.db.WithContext(ctx).Preload("Issues", orderIssues).First(&analysis, id).Error; err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (s *analysisStore) ListByProject(ctx context.Context, projectID uint, prNumber *int, limit, offset int) ([]model.CodeAnalysis, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.CodeAnalysis{}).Where("project_id = ?", projectID)
	if prNumber != nil {
		query = query.Where("pr_number = ?", *prNumber)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var analyses []model.CodeAnalysis
	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&analyses).Error
	return analyses, total, err
}

func orderIssues(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
