package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/fingerprint"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/reconcile"
	apperrors "github.com/rostilos/CodeCrow-sub008/pkg/errors"
)

const (
	defaultMaxFileChecks = 20
	fileCheckConcurrency = 4
	// maxSnippetLines caps the hunk lines sent per file as a snippet
	maxSnippetLines = 60
)

// gathered is the PR context collected before the request is built
type gathered struct {
	diff        string
	fingerprint string
	versions    []model.CodeAnalysis // newest first

	// set only when an incremental delta is available
	previousCommit string
	deltaDiff      string
}

// gather fetches the PR diff and the stored versions of the PR concurrently,
// then tries to obtain the delta since the last analyzed commit
func (o *Orchestrator) gather(ctx context.Context, r *run) (*gathered, error) {
	p := r.req.Project
	out := &gathered{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		diff, err := r.vcs.GetPullRequestDiff(gctx, p.Owner, p.Repo, r.req.PRNumber)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeVCSRequest, "failed to fetch pull request diff", err)
		}
		out.diff = diff
		return nil
	})
	g.Go(func() error {
		versions, err := o.analyses.FindAllAnalysisVersions(gctx, p.ID, r.req.PRNumber)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeDBQuery, "failed to load previous analyses", err)
		}
		out.versions = versions
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.fingerprint, _ = fingerprint.Compute(out.diff)

	prev := previousCommit(out.versions, r.req.CommitHash)
	if prev == "" {
		return out, nil
	}
	delta, err := r.vcs.GetCommitRangeDiff(ctx, p.Owner, p.Repo, prev, r.req.CommitHash)
	switch {
	case errors.Is(err, provider.ErrUnsupported):
		r.events.emit(EventInfo, "provider cannot diff commit ranges, running a full analysis", StateCacheChecked, nil)
	case err != nil:
		r.log.Warn("Commit range diff failed, running a full analysis", zap.String("previous_commit", prev), zap.Error(err))
		r.events.emit(EventWarning, "could not compute changes since the last analysis, running a full analysis", StateCacheChecked, nil)
	default:
		out.previousCommit = prev
		out.deltaDiff = delta
	}
	return out, nil
}

// previousCommit returns the newest analyzed commit of the PR other than
// current
func previousCommit(versions []model.CodeAnalysis, current string) string {
	for i := range versions {
		if c := versions[i].CommitHash; c != "" && c != current {
			return c
		}
	}
	return ""
}

func (o *Orchestrator) buildRequest(ctx context.Context, r *run, g *gathered) aiclient.Request {
	p := r.req.Project
	lang := r.req.OutputLanguage
	if lang == "" {
		lang = o.cfg.OutputLanguage
	}

	b := aiclient.NewBuilder().
		WithProject(p).
		WithCredentials(aiclient.Credentials{
			AccessToken: o.providers.Token(p.Provider),
			BaseURL:     r.vcs.GetBaseURL(),
		}).
		WithPullRequest(r.req.PRNumber, r.req.Title, r.req.Description, r.req.Author).
		WithBranches(r.req.SourceBranch, r.req.TargetBranch).
		WithCommitHash(r.req.CommitHash).
		WithChangedFiles(fingerprint.ChangedFiles(g.diff)).
		WithDiffSnippets(fingerprint.Snippets(g.diff, maxSnippetLines)).
		WithRawDiff(g.diff).
		WithIncremental(g.previousCommit, g.deltaDiff).
		WithOutputLanguage(lang).
		WithAllPrAnalysesData(g.versions)
	if o.cfg.MaxAllowedTokens > 0 {
		b.WithMaxAllowedTokens(o.cfg.MaxAllowedTokens)
	}

	req := b.Build()
	o.markRemovedFiles(ctx, r, req.PreviousIssues)
	return req
}

// markRemovedFiles resolves open previous issues whose file no longer exists
// on the source branch. Check failures count as "exists".
func (o *Orchestrator) markRemovedFiles(ctx context.Context, r *run, issues []reconcile.Issue) {
	var files []string
	seen := make(map[string]struct{})
	for _, issue := range issues {
		if issue.IsResolved() || issue.File == "" {
			continue
		}
		if _, ok := seen[issue.File]; ok {
			continue
		}
		seen[issue.File] = struct{}{}
		files = append(files, issue.File)
		if len(files) == o.cfg.MaxFileChecks {
			break
		}
	}
	if len(files) == 0 {
		return
	}

	p := r.req.Project
	var mu sync.Mutex
	removed := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fileCheckConcurrency)
	for _, file := range files {
		g.Go(func() error {
			exists, err := r.vcs.CheckFileExistsInBranch(gctx, p.Owner, p.Repo, r.req.SourceBranch, file)
			if errors.Is(err, provider.ErrUnsupported) {
				return err
			}
			if err != nil {
				r.log.Debug("File existence check failed", zap.String("file", file), zap.Error(err))
				return nil
			}
			if !exists {
				mu.Lock()
				removed[file] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range issues {
		if removed[issues[i].File] && !issues[i].IsResolved() {
			issues[i].Status = reconcile.StatusResolved
			issues[i].ResolvedDescription = "file no longer exists on " + r.req.SourceBranch
		}
	}
}
