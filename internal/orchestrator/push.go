package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/lock"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	apperrors "github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// ResolvePush maps a branch push to the open PR whose head is commit and
// returns its number, or 0 when there is none. The BRANCH_ANALYSIS lock of
// the commit is held for the lookup, so a busy target returns an
// ErrCodeAnalysisLocked error without waiting.
func (o *Orchestrator) ResolvePush(ctx context.Context, project *model.Project, branch, commit string) (int, error) {
	target := lock.BranchAnalysis(project.ID, branch, commit)
	ok, err := o.locks.TryAcquire(ctx, target)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeInternal, "lock acquisition failed", err)
	}
	if !ok {
		return 0, apperrors.ErrLocked(target.Key())
	}
	defer func() {
		if err := o.locks.Release(context.WithoutCancel(ctx), target.Key()); err != nil {
			o.log.Error("Failed to release branch lock", zap.String(logger.FieldLockKey, target.Key()), zap.Error(err))
		}
	}()

	vcs, err := o.providers.Get(project.Provider)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeVCSUnsupported, "provider unavailable", err)
	}
	number, err := vcs.FindPullRequestForCommit(ctx, project.Owner, project.Repo, commit)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeVCSRequest, "failed to find pull request for commit", err)
	}

	o.log.Debug("Resolved push to pull request",
		zap.Uint(logger.FieldProjectID, project.ID),
		zap.String("branch", branch),
		zap.String(logger.FieldCommit, commit),
		zap.Int(logger.FieldPRNumber, number),
	)
	return number, nil
}
