package provider

import (
	"context"
	"strings"
)

// CommentStore is the comment subset of Reporting used by marker deletion
type CommentStore interface {
	ListComments(ctx context.Context, owner, repo string, prNumber int) ([]*Comment, error)
	DeleteComment(ctx context.Context, owner, repo string, prNumber int, commentID int64) error
}

// DeleteCommentsContaining removes every PR comment whose body contains
// marker. It stops at the first failed deletion and returns the count of
// comments removed so far.
func DeleteCommentsContaining(ctx context.Context, cs CommentStore, owner, repo string, prNumber int, marker string) (int, error) {
	if marker == "" {
		return 0, nil
	}
	comments, err := cs.ListComments(ctx, owner, repo, prNumber)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, c := range comments {
		if !strings.Contains(c.Body, marker) {
			continue
		}
		if err := cs.DeleteComment(ctx, owner, repo, prNumber, c.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
