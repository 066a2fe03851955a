// Package cache answers whether an analysis can be served from a stored result.
package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// Source is the subset of store.AnalysisStore the cache reads from.
type Source interface {
	FindCodeAnalysis(ctx context.Context, projectID uint, commitHash string, prNumber int) (*model.CodeAnalysis, error)
	FindByDiffFingerprint(ctx context.Context, projectID uint, fingerprint string) (*model.CodeAnalysis, error)
}

// HitKind tells how a cached analysis was found
type HitKind string

const (
	HitExact       HitKind = "exact"
	HitFingerprint HitKind = "fingerprint"
)

// Hit is a cached analysis ready to be republished.
type Hit struct {
	Kind     HitKind
	Analysis *model.CodeAnalysis
}

// AnalysisCache looks up stored analyses by (project, commit, PR) and by
// diff fingerprint.
type AnalysisCache struct {
	source Source
	log    *zap.Logger
}

// New creates an AnalysisCache over source.
func New(source Source) *AnalysisCache {
	return &AnalysisCache{source: source, log: logger.Named("cache")}
}

// Lookup returns the analysis stored for exactly this project, commit and PR,
// or nil.
func (c *AnalysisCache) Lookup(ctx context.Context, projectID uint, commitHash string, prNumber int) (*model.CodeAnalysis, error) {
	analysis, err := c.source.FindCodeAnalysis(ctx, projectID, commitHash, prNumber)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	return analysis, nil
}

// Resolve tries the exact key first, then MatchFingerprint.
func (c *AnalysisCache) Resolve(ctx context.Context, projectID uint, commitHash string, prNumber int, fingerprint string) (*Hit, error) {
	exact, err := c.Lookup(ctx, projectID, commitHash, prNumber)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		c.log.Debug("Exact cache hit",
			zap.Uint(logger.FieldProjectID, projectID),
			zap.String(logger.FieldCommit, commitHash),
			zap.Int(logger.FieldPRNumber, prNumber),
		)
		return &Hit{Kind: HitExact, Analysis: exact}, nil
	}
	return c.MatchFingerprint(ctx, projectID, commitHash, prNumber, fingerprint)
}

// MatchFingerprint looks for a stored analysis of the same project whose diff
// fingerprint equals fingerprint. A match is returned as a clone bound to the
// new commit and PR; the caller persists it. An empty fingerprint never
// matches.
func (c *AnalysisCache) MatchFingerprint(ctx context.Context, projectID uint, commitHash string, prNumber int, fingerprint string) (*Hit, error) {
	if fingerprint == "" {
		return nil, nil
	}
	match, err := c.source.FindByDiffFingerprint(ctx, projectID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if match == nil {
		return nil, nil
	}

	c.log.Info("Diff fingerprint matched a stored analysis",
		zap.Uint(logger.FieldProjectID, projectID),
		zap.String(logger.FieldCommit, commitHash),
		zap.Int(logger.FieldPRNumber, prNumber),
		zap.Uint("source_analysis_id", match.ID),
	)
	return &Hit{Kind: HitFingerprint, Analysis: CloneFor(match, commitHash, prNumber)}, nil
}

// CloneFor copies src and its issues into a new, unsaved analysis for another
// commit and PR. Resolution state of the issues is kept; PRVersion is left for
// the store to allocate.
func CloneFor(src *model.CodeAnalysis, commitHash string, prNumber int) *model.CodeAnalysis {
	clone := &model.CodeAnalysis{
		ProjectID:        src.ProjectID,
		CommitHash:       commitHash,
		PRNumber:         prNumber,
		AnalysisType:     src.AnalysisType,
		TargetBranchName: src.TargetBranchName,
		SourceBranchName: src.SourceBranchName,
		Status:           src.Status,
		Comment:          src.Comment,
		DiffFingerprint:  src.DiffFingerprint,
	}
	if len(src.Metadata) > 0 {
		clone.Metadata = make(model.JSONMap, len(src.Metadata)+1)
		for k, v := range src.Metadata {
			clone.Metadata[k] = v
		}
	} else {
		clone.Metadata = model.JSONMap{}
	}
	clone.Metadata["reused_from_analysis_id"] = src.ID

	issues := make([]model.CodeAnalysisIssue, len(src.Issues))
	for i, issue := range src.Issues {
		issue.ID = 0
		issue.AnalysisID = 0
		issue.CreatedAt = time.Time{}
		issues[i] = issue
	}
	clone.SetIssues(issues)
	return clone
}
