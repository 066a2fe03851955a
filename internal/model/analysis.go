package model

import (
	"strings"
	"time"
)

// AnalysisType distinguishes pull request reviews from branch analyses
type AnalysisType string

const (
	AnalysisTypePRReview       AnalysisType = "PR_REVIEW"
	AnalysisTypeBranchAnalysis AnalysisType = "BRANCH_ANALYSIS"
)

// AnalysisStatus represents the status of a stored analysis
type AnalysisStatus string

const (
	AnalysisStatusAccepted AnalysisStatus = "ACCEPTED"
	AnalysisStatusRejected AnalysisStatus = "REJECTED"
	AnalysisStatusError    AnalysisStatus = "ERROR"
)

// Severity of a reported issue
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
	SeverityInfo   Severity = "INFO"
)

// ParseSeverity normalizes an AI-reported severity. Unknown values map to INFO;
// "critical" and "error" are folded into HIGH, "warning" into MEDIUM.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "CRITICAL", "ERROR", "BLOCKER":
		return SeverityHigh
	case "MEDIUM", "WARNING", "MAJOR":
		return SeverityMedium
	case "LOW", "MINOR":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// CodeAnalysis is one completed analysis run.
// (ProjectID, CommitHash, PRNumber) is unique and serves as the cache key; PRNumber is 0
// for branch analyses. (ProjectID, PRNumber, PRVersion) is unique as well, so two
// revisions of one PR never share a version.
type CodeAnalysis struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID  uint   `gorm:"not null;uniqueIndex:idx_analysis_cache_key,priority:1;uniqueIndex:idx_analysis_pr_version,priority:1" json:"project_id"`
	CommitHash string `gorm:"size:64;not null;uniqueIndex:idx_analysis_cache_key,priority:2" json:"commit_hash"`
	PRNumber   int    `gorm:"not null;default:0;uniqueIndex:idx_analysis_cache_key,priority:3;uniqueIndex:idx_analysis_pr_version,priority:2" json:"pr_number,omitempty"`

	AnalysisType     AnalysisType   `gorm:"size:32;not null" json:"analysis_type"`
	TargetBranchName string         `gorm:"size:255" json:"target_branch_name"`
	SourceBranchName string         `gorm:"size:255" json:"source_branch_name,omitempty"`
	Status           AnalysisStatus `gorm:"size:32;not null;default:ACCEPTED" json:"status"`
	Comment          string         `gorm:"type:text" json:"comment"`
	PRVersion        int            `gorm:"not null;uniqueIndex:idx_analysis_pr_version,priority:3" json:"pr_version"`
	DiffFingerprint  string         `gorm:"size:64;index" json:"diff_fingerprint,omitempty"`

	// Derived counters, maintained by RecomputeCounters
	TotalIssues         int `gorm:"default:0" json:"total_issues"`
	HighSeverityCount   int `gorm:"default:0" json:"high_severity_count"`
	MediumSeverityCount int `gorm:"default:0" json:"medium_severity_count"`
	LowSeverityCount    int `gorm:"default:0" json:"low_severity_count"`
	InfoSeverityCount   int `gorm:"default:0" json:"info_severity_count"`
	ResolvedCount       int `gorm:"default:0" json:"resolved_count"`

	// Metadata keeps top-level fields of the AI result other than comment/issues
	Metadata JSONMap `gorm:"type:text" json:"metadata,omitempty"`

	Issues []CodeAnalysisIssue `gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE" json:"issues,omitempty"`
}

// SetIssues replaces the issue collection and recomputes the counters
func (a *CodeAnalysis) SetIssues(issues []CodeAnalysisIssue) {
	a.Issues = issues
	a.RecomputeCounters()
}

// AddIssue appends an issue and recomputes the counters
func (a *CodeAnalysis) AddIssue(issue CodeAnalysisIssue) {
	a.Issues = append(a.Issues, issue)
	a.RecomputeCounters()
}

// RecomputeCounters derives the severity counters from the issue collection.
// Resolved issues are counted in ResolvedCount only.
func (a *CodeAnalysis) RecomputeCounters() {
	a.TotalIssues, a.ResolvedCount = 0, 0
	a.HighSeverityCount, a.MediumSeverityCount, a.LowSeverityCount, a.InfoSeverityCount = 0, 0, 0, 0

	for i := range a.Issues {
		if a.Issues[i].Resolved {
			a.ResolvedCount++
			continue
		}
		a.TotalIssues++
		switch a.Issues[i].Severity {
		case SeverityHigh:
			a.HighSeverityCount++
		case SeverityMedium:
			a.MediumSeverityCount++
		case SeverityLow:
			a.LowSeverityCount++
		default:
			a.InfoSeverityCount++
		}
	}
}

// CodeAnalysisIssue is one finding attached to an analysis
type CodeAnalysisIssue struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	AnalysisID uint      `gorm:"not null;index" json:"analysis_id"`

	Severity   Severity `gorm:"size:16;not null;index" json:"severity"`
	FilePath   string   `gorm:"size:1024;not null" json:"file_path"`
	LineNumber *int     `json:"line_number,omitempty"`
	Category   string   `gorm:"size:100" json:"category,omitempty"`
	Reason     string   `gorm:"type:text" json:"reason"`

	SuggestedFixDescription string `gorm:"type:text" json:"suggested_fix_description,omitempty"`
	SuggestedFixDiff        string `gorm:"type:text" json:"suggested_fix_diff,omitempty"`

	// Resolution state is written by the reconciliation job, read here
	Resolved            bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedByPR        *int       `json:"resolved_by_pr,omitempty"`
	ResolvedCommitHash  string     `gorm:"size:64" json:"resolved_commit_hash,omitempty"`
	ResolvedAnalysisID  *uint      `json:"resolved_analysis_id,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy          string     `gorm:"size:255" json:"resolved_by,omitempty"`
	ResolvedDescription string     `gorm:"type:text" json:"resolved_description,omitempty"`

	Author string `gorm:"size:255" json:"author,omitempty"`
}
