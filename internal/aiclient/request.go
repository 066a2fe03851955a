package aiclient

import (
	"slices"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/reconcile"
)

// Analysis modes
const (
	ModeFull        = "FULL"
	ModeIncremental = "INCREMENTAL"
)

// DefaultOutputLanguage is used when no or an unparsable language is set
const DefaultOutputLanguage = "en"

// Credentials are the decrypted VCS credentials the AI service may use to
// fetch additional context.
type Credentials struct {
	AccessToken string `json:"accessToken,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
}

// Request is the payload sent to the AI service. Values returned by
// Builder.Build share no mutable state with the builder.
type Request struct {
	ProjectID        uint   `json:"projectId"`
	ProjectName      string `json:"projectName"`
	ProjectWorkspace string `json:"projectWorkspace,omitempty"`
	ProjectNamespace string `json:"projectNamespace,omitempty"`

	VCSProvider string      `json:"projectVcsProvider"`
	Credentials Credentials `json:"credentials"`

	AnalysisType       model.AnalysisType `json:"analysisType"`
	PullRequestID      int                `json:"pullRequestId,omitempty"`
	PullRequestTitle   string             `json:"prTitle,omitempty"`
	PullRequestBody    string             `json:"prDescription,omitempty"`
	Author             string             `json:"prAuthor,omitempty"`
	SourceBranch       string             `json:"sourceBranchName,omitempty"`
	TargetBranch       string             `json:"targetBranchName"`
	CommitHash         string             `json:"commitHash"`
	ChangedFiles       []string           `json:"changedFiles,omitempty"`
	DiffSnippets       []string           `json:"diffSnippets,omitempty"`
	RawDiff            string             `json:"rawDiff,omitempty"`
	AnalysisMode       string             `json:"analysisMode"`
	PreviousCommitHash string             `json:"previousCommitHash,omitempty"`
	DeltaDiff          string             `json:"deltaDiff,omitempty"`
	MaxAllowedTokens   int                `json:"maxAllowedTokens,omitempty"`
	OutputLanguage     string             `json:"outputLanguage"`
	OutputLanguageName string             `json:"outputLanguageName"`
	PreviousIssues     []reconcile.Issue  `json:"previousCodeAnalysisIssues,omitempty"`
}

// Builder accumulates request fields. Setters only mutate the builder and
// return it for chaining; Build performs no I/O.
type Builder struct {
	req Request
}

// NewBuilder creates a builder for a pull request review in FULL mode
func NewBuilder() *Builder {
	return &Builder{req: Request{
		AnalysisType:   model.AnalysisTypePRReview,
		AnalysisMode:   ModeFull,
		OutputLanguage: DefaultOutputLanguage,
	}}
}

// WithProject sets the project metadata
func (b *Builder) WithProject(p *model.Project) *Builder {
	b.req.ProjectID = p.ID
	b.req.ProjectName = p.Name
	b.req.ProjectWorkspace = p.Owner
	b.req.ProjectNamespace = p.Namespace
	b.req.VCSProvider = p.Provider
	if p.MaxAnalysisTokens > 0 && b.req.MaxAllowedTokens == 0 {
		b.req.MaxAllowedTokens = p.MaxAnalysisTokens
	}
	return b
}

func (b *Builder) WithCredentials(c Credentials) *Builder {
	b.req.Credentials = c
	return b
}

// WithPullRequest sets the PR identity and descriptive fields
func (b *Builder) WithPullRequest(number int, title, description, author string) *Builder {
	b.req.PullRequestID = number
	b.req.PullRequestTitle = title
	b.req.PullRequestBody = description
	b.req.Author = author
	return b
}

func (b *Builder) WithBranches(source, target string) *Builder {
	b.req.SourceBranch = source
	b.req.TargetBranch = target
	return b
}

func (b *Builder) WithCommitHash(hash string) *Builder {
	b.req.CommitHash = hash
	return b
}

func (b *Builder) WithChangedFiles(files []string) *Builder {
	b.req.ChangedFiles = files
	return b
}

func (b *Builder) WithDiffSnippets(snippets []string) *Builder {
	b.req.DiffSnippets = snippets
	return b
}

func (b *Builder) WithRawDiff(diff string) *Builder {
	b.req.RawDiff = diff
	return b
}

// WithIncremental switches the request to INCREMENTAL mode with the diff
// between previousCommit and the current commit. An empty delta keeps FULL.
func (b *Builder) WithIncremental(previousCommit, deltaDiff string) *Builder {
	if deltaDiff == "" {
		b.req.AnalysisMode = ModeFull
		b.req.PreviousCommitHash = ""
		b.req.DeltaDiff = ""
		return b
	}
	b.req.AnalysisMode = ModeIncremental
	b.req.PreviousCommitHash = previousCommit
	b.req.DeltaDiff = deltaDiff
	return b
}

func (b *Builder) WithMaxAllowedTokens(n int) *Builder {
	b.req.MaxAllowedTokens = n
	return b
}

// WithOutputLanguage sets the language the AI should answer in. The value is
// parsed as a BCP 47 tag; unparsable input keeps the current language.
func (b *Builder) WithOutputLanguage(lang string) *Builder {
	if lang == "" {
		return b
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return b
	}
	b.req.OutputLanguage = tag.String()
	return b
}

// WithAllPrAnalysesData reconciles the issues of every stored version of the
// PR (newest first) and attaches the result as previous issues.
func (b *Builder) WithAllPrAnalysesData(versions []model.CodeAnalysis) *Builder {
	if len(versions) == 0 {
		return b
	}
	grouped := make([][]reconcile.Issue, 0, len(versions))
	for i := range versions {
		grouped = append(grouped, IssuesFromAnalysis(&versions[i]))
	}
	b.req.PreviousIssues = reconcile.Reconcile(grouped)
	return b
}

// WithPreviousAnalysisData attaches the issues of a single stored analysis
func (b *Builder) WithPreviousAnalysisData(analysis *model.CodeAnalysis) *Builder {
	if analysis == nil {
		return b
	}
	b.req.PreviousIssues = reconcile.ReconcileSingle(IssuesFromAnalysis(analysis))
	return b
}

// Build returns the accumulated request
func (b *Builder) Build() Request {
	req := b.req
	if req.AnalysisMode == "" {
		req.AnalysisMode = ModeFull
	}
	if tag, err := language.Parse(req.OutputLanguage); err == nil {
		req.OutputLanguageName = display.English.Tags().Name(tag)
	}
	req.ChangedFiles = slices.Clone(req.ChangedFiles)
	req.DiffSnippets = slices.Clone(req.DiffSnippets)
	req.PreviousIssues = slices.Clone(req.PreviousIssues)
	return req
}

// IssuesFromAnalysis converts stored issues into their wire form, stamping
// each with the analysis revision.
func IssuesFromAnalysis(a *model.CodeAnalysis) []reconcile.Issue {
	issues := make([]reconcile.Issue, 0, len(a.Issues))
	for i := range a.Issues {
		src := &a.Issues[i]
		version := a.PRVersion
		reason := src.Reason

		issue := reconcile.Issue{
			ID:                      strconv.FormatUint(uint64(src.ID), 10),
			Type:                    src.Category,
			Severity:                string(src.Severity),
			Reason:                  &reason,
			SuggestedFixDescription: src.SuggestedFixDescription,
			SuggestedFixDiff:        src.SuggestedFixDiff,
			File:                    src.FilePath,
			Line:                    src.LineNumber,
			Branch:                  a.SourceBranchName,
			Status:                  reconcile.StatusOpen,
			Category:                src.Category,
			PRVersion:               &version,
			ResolvedDescription:     src.ResolvedDescription,
			ResolvedByCommit:        src.ResolvedCommitHash,
			ResolvedInAnalysisID:    src.ResolvedAnalysisID,
		}
		if a.PRNumber > 0 {
			issue.PullRequestID = strconv.Itoa(a.PRNumber)
		}
		if src.Resolved {
			issue.Status = reconcile.StatusResolved
		}
		issues = append(issues, issue)
	}
	return issues
}
