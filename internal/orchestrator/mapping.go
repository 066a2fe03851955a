package orchestrator

import (
	"strings"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// toAnalysis converts a validated AI result into an unsaved analysis. PRVersion
// stays 0 so the store allocates it on insert.
func toAnalysis(req Request, aiReq aiclient.Request, res *aiclient.Result, fp string) *model.CodeAnalysis {
	a := &model.CodeAnalysis{
		ProjectID:        req.Project.ID,
		CommitHash:       req.CommitHash,
		PRNumber:         req.PRNumber,
		AnalysisType:     aiReq.AnalysisType,
		TargetBranchName: req.TargetBranch,
		SourceBranchName: req.SourceBranch,
		Status:           model.AnalysisStatusAccepted,
		Comment:          res.Comment,
		DiffFingerprint:  fp,
		Metadata:         model.JSONMap{},
	}
	for k, v := range res.Metadata {
		a.Metadata[k] = v
	}
	a.Metadata["analysis_mode"] = aiReq.AnalysisMode
	if aiReq.PreviousCommitHash != "" {
		a.Metadata["previous_commit_hash"] = aiReq.PreviousCommitHash
	}
	a.Metadata["output_language"] = aiReq.OutputLanguage

	issues := make([]model.CodeAnalysisIssue, 0, len(res.Issues))
	for _, ri := range res.Issues {
		issues = append(issues, toIssue(ri, req))
	}
	a.SetIssues(issues)
	return a
}

func toIssue(ri aiclient.ResultIssue, req Request) model.CodeAnalysisIssue {
	issue := model.CodeAnalysisIssue{
		Severity:                model.ParseSeverity(ri.Severity),
		FilePath:                ri.File,
		LineNumber:              ri.Line,
		Category:                strings.TrimSpace(ri.Category),
		Reason:                  ri.Reason,
		SuggestedFixDescription: ri.SuggestedFixDescription,
		SuggestedFixDiff:        ri.SuggestedFixDiff,
		Author:                  req.Author,
	}
	if ri.Resolved {
		issue.Resolved = true
		issue.ResolvedDescription = ri.ResolvedDescription
		issue.ResolvedCommitHash = ri.ResolvedByCommit
		if issue.ResolvedCommitHash == "" {
			issue.ResolvedCommitHash = req.CommitHash
		}
		pr := req.PRNumber
		issue.ResolvedByPR = &pr
	}
	return issue
}
