// Package output renders analyses for publication on a VCS.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// MarkdownOptions controls markdown generation
type MarkdownOptions struct {
	// Marker is written first so previous summaries can be found and removed
	Marker string

	// MaxIssues caps the issues listed; 0 lists all
	MaxIssues int

	// CollapsibleFixes wraps suggested fixes in <details> blocks
	CollapsibleFixes bool

	// Footer is appended in italics, e.g. the model name
	Footer string
}

// CommentOptions returns the options used for PR summary comments
func CommentOptions() MarkdownOptions {
	return MarkdownOptions{
		Marker:           consts.CommentMarker,
		MaxIssues:        50,
		CollapsibleFixes: true,
	}
}

var severityOrder = []model.Severity{model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo}

var severityIcon = map[model.Severity]string{
	model.SeverityHigh:   "🔴",
	model.SeverityMedium: "🟠",
	model.SeverityLow:    "🟡",
	model.SeverityInfo:   "🔵",
}

// RenderAnalysis formats an analysis as a markdown summary. Resolved issues
// are only counted, never listed.
func RenderAnalysis(a *model.CodeAnalysis, project *model.Project, opts MarkdownOptions) string {
	var sb strings.Builder

	if opts.Marker != "" {
		sb.WriteString(opts.Marker)
		sb.WriteString("\n")
	}

	sb.WriteString("## ")
	sb.WriteString(consts.ProjectName)
	sb.WriteString(" Analysis")
	if project != nil && project.Name != "" {
		fmt.Fprintf(&sb, " · %s", project.Name)
	}
	sb.WriteString("\n\n")

	if a.CommitHash != "" {
		fmt.Fprintf(&sb, "**Commit**: `%s`", shortSHA(a.CommitHash))
		if a.PRVersion > 0 {
			fmt.Fprintf(&sb, " · **Revision**: %d", a.PRVersion)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("| High | Medium | Low | Info | Resolved |\n")
	sb.WriteString("|:---:|:---:|:---:|:---:|:---:|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %d |\n\n",
		a.HighSeverityCount, a.MediumSeverityCount, a.LowSeverityCount, a.InfoSeverityCount, a.ResolvedCount)

	if c := strings.TrimSpace(a.Comment); c != "" {
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}

	open := openIssues(a.Issues)
	if len(open) == 0 {
		sb.WriteString("✅ No open issues.\n")
	} else {
		writeIssues(&sb, open, opts)
	}

	if opts.Footer != "" {
		fmt.Fprintf(&sb, "\n---\n*%s*\n", opts.Footer)
	}
	return sb.String()
}

func writeIssues(sb *strings.Builder, issues []model.CodeAnalysisIssue, opts MarkdownOptions) {
	listed := issues
	if opts.MaxIssues > 0 && len(listed) > opts.MaxIssues {
		listed = listed[:opts.MaxIssues]
	}

	sb.WriteString("### Issues\n\n")
	for _, sev := range severityOrder {
		for _, issue := range listed {
			if issue.Severity != sev {
				continue
			}
			writeIssue(sb, issue, opts)
		}
	}

	if rest := len(issues) - len(listed); rest > 0 {
		fmt.Fprintf(sb, "\n_…and %d more issue(s) not shown._\n", rest)
	}
}

func writeIssue(sb *strings.Builder, issue model.CodeAnalysisIssue, opts MarkdownOptions) {
	icon := severityIcon[issue.Severity]
	location := issue.FilePath
	if issue.LineNumber != nil {
		location = fmt.Sprintf("%s:%d", issue.FilePath, *issue.LineNumber)
	}

	fmt.Fprintf(sb, "- %s **%s** `%s`", icon, issue.Severity, location)
	if issue.Category != "" {
		fmt.Fprintf(sb, " _%s_", issue.Category)
	}
	sb.WriteString("\n")
	if reason := strings.TrimSpace(issue.Reason); reason != "" {
		fmt.Fprintf(sb, "  %s\n", strings.ReplaceAll(reason, "\n", "\n  "))
	}

	if issue.SuggestedFixDescription == "" && issue.SuggestedFixDiff == "" {
		return
	}
	if opts.CollapsibleFixes {
		sb.WriteString("  <details><summary>Suggested fix</summary>\n\n")
	}
	if issue.SuggestedFixDescription != "" {
		fmt.Fprintf(sb, "  %s\n", issue.SuggestedFixDescription)
	}
	if issue.SuggestedFixDiff != "" {
		sb.WriteString("\n  ```diff\n")
		for _, line := range strings.Split(strings.TrimRight(issue.SuggestedFixDiff, "\n"), "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("  ```\n")
	}
	if opts.CollapsibleFixes {
		sb.WriteString("\n  </details>\n")
	}
}

// openIssues returns the unresolved issues ordered by file and line
func openIssues(issues []model.CodeAnalysisIssue) []model.CodeAnalysisIssue {
	open := make([]model.CodeAnalysisIssue, 0, len(issues))
	for _, issue := range issues {
		if !issue.Resolved {
			open = append(open, issue)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].FilePath != open[j].FilePath {
			return open[i].FilePath < open[j].FilePath
		}
		return lineOf(open[i]) < lineOf(open[j])
	})
	return open
}

func lineOf(issue model.CodeAnalysisIssue) int {
	if issue.LineNumber == nil {
		return 0
	}
	return *issue.LineNumber
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
