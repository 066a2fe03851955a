package model

import "time"

// Project binds a repository on a VCS provider to the analyses recorded for it.
type Project struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"size:255;not null" json:"name"`
	Namespace string `gorm:"size:255" json:"namespace,omitempty"` // workspace / group

	// Repository coordinates, unique per provider
	Provider      string `gorm:"size:50;not null;uniqueIndex:idx_project_repo,priority:1" json:"provider"`
	Owner         string `gorm:"size:255;not null;uniqueIndex:idx_project_repo,priority:2" json:"owner"`
	Repo          string `gorm:"size:255;not null;uniqueIndex:idx_project_repo,priority:3" json:"repo"`
	DefaultBranch string `gorm:"size:255;default:main" json:"default_branch"`

	// MaxAnalysisTokens caps the prompt size the AI service may build (0 = service default)
	MaxAnalysisTokens int `gorm:"default:0" json:"max_analysis_tokens"`
}

// FullName returns owner/repo
func (p *Project) FullName() string {
	return p.Owner + "/" + p.Repo
}
