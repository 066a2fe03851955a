package output

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// CommentPublisher is the part of provider.Reporting needed to replace a
// PR summary comment
type CommentPublisher interface {
	PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error)
	DeleteCommentsByMarker(ctx context.Context, owner, repo string, prNumber int, marker string) (int, error)
}

// PublishSummary removes earlier comments carrying marker, then posts body.
// Failing to remove old comments is logged and does not prevent posting.
func PublishSummary(ctx context.Context, p CommentPublisher, owner, repo string, prNumber int, marker, body string) (int64, error) {
	if prNumber <= 0 {
		return 0, fmt.Errorf("publish summary: no pull request number")
	}

	if marker != "" {
		removed, err := p.DeleteCommentsByMarker(ctx, owner, repo, prNumber, marker)
		switch {
		case errors.Is(err, provider.ErrUnsupported):
		case err != nil:
			logger.Warn("Failed to remove previous summary comments",
				zap.String("repo", owner+"/"+repo),
				zap.Int("pr", prNumber),
				zap.Error(err),
			)
		case removed > 0:
			logger.Debug("Removed previous summary comments",
				zap.String("repo", owner+"/"+repo),
				zap.Int("pr", prNumber),
				zap.Int("count", removed),
			)
		}
	}

	id, err := p.PostComment(ctx, owner, repo, prNumber, body)
	if err != nil {
		return 0, fmt.Errorf("failed to post comment: %w", err)
	}

	logger.Info("Posted analysis summary",
		zap.String("repo", owner+"/"+repo),
		zap.Int("pr", prNumber),
		zap.Int64("comment_id", id),
	)
	return id, nil
}
