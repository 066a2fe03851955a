package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// ProjectStore defines operations for Project models.
type ProjectStore interface {
	// Save inserts or updates a project by primary key
	Save(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, id uint) (*model.Project, error)
	GetByRepo(ctx context.Context, provider, owner, repo string) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
}

type projectStore struct {
	db *gorm.DB
}

func newProjectStore(db *gorm.DB) ProjectStore {
	return &projectStore{db: db}
}

func (s *projectStore) Save(ctx context.Context, project *model.Project) error {
	return s.db.WithContext(ctx).Save(project).Error
}

func (s *projectStore) GetByID(ctx context.Context, id uint) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *projectStore) GetByRepo(ctx context.Context, provider, owner, repo string) (*model.Project, error) {
	var project model.Project
	err := s.db.WithContext(ctx).
		Where("provider = ? AND owner = ? AND repo = ?", provider, owner, repo).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *projectStore) List(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.WithContext(ctx).Order("id ASC").Find(&projects).Error
	return projects, err
}
