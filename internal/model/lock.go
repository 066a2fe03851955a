package model

import "time"

// LockType identifies the kind of work an analysis lock serializes
type LockType string

const (
	LockTypePRAnalysis     LockType = "PR_ANALYSIS"
	LockTypeBranchAnalysis LockType = "BRANCH_ANALYSIS"
	LockTypeRAGIndexing    LockType = "RAG_INDEXING"
)

// Valid reports whether t is a known lock type
func (t LockType) Valid() bool {
	switch t {
	case LockTypePRAnalysis, LockTypeBranchAnalysis, LockTypeRAGIndexing:
		return true
	}
	return false
}

// AnalysisLock is one row of the shared lock table.
// Rows are never updated: acquisition inserts, release deletes, and a row whose
// ExpiresAt has passed counts as free even before it is purged.
type AnalysisLock struct {
	ID uint `gorm:"primarykey" json:"id"`

	// LockKey is unique; the constraint is what makes acquisition atomic across processes
	LockKey string `gorm:"size:512;not null;uniqueIndex" json:"lock_key"`

	ProjectID  uint     `gorm:"not null;index" json:"project_id"`
	Branch     string   `gorm:"size:255;not null" json:"branch"`
	LockType   LockType `gorm:"size:32;not null" json:"lock_type"`
	CommitHash string   `gorm:"size:64" json:"commit_hash,omitempty"`
	PRNumber   *int     `json:"pr_number,omitempty"`

	OwnerInstanceID string    `gorm:"size:255;not null" json:"owner_instance_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `gorm:"not null;index" json:"expires_at"`
}

// IsExpired reports whether the lock no longer holds at the given instant
func (l *AnalysisLock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
