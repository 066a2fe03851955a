// Package lock serializes analysis work across server processes through the
// shared lock table.
package lock

import (
	"strconv"
	"strings"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// Target describes one unit of contention. Two requests for the same logical
// work always produce the same Key.
type Target struct {
	ProjectID  uint
	Branch     string
	Type       model.LockType
	CommitHash string // optional
	PRNumber   int    // optional, 0 when absent
}

// Key derives the lock key: type:project:branch[:commit][:pr].
// Optional parts are appended only when set.
func (t Target) Key() string {
	var b strings.Builder
	b.WriteString(string(t.Type))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(t.ProjectID), 10))
	b.WriteByte(':')
	b.WriteString(t.Branch)
	if t.CommitHash != "" {
		b.WriteString(":c=")
		b.WriteString(t.CommitHash)
	}
	if t.PRNumber > 0 {
		b.WriteString(":pr=")
		b.WriteString(strconv.Itoa(t.PRNumber))
	}
	return b.String()
}

// PRAnalysis is the target of a pull request review
func PRAnalysis(projectID uint, branch, commit string, prNumber int) Target {
	return Target{ProjectID: projectID, Branch: branch, Type: model.LockTypePRAnalysis, CommitHash: commit, PRNumber: prNumber}
}

// BranchAnalysis is the target of a post-merge branch analysis
func BranchAnalysis(projectID uint, branch, commit string) Target {
	return Target{ProjectID: projectID, Branch: branch, Type: model.LockTypeBranchAnalysis, CommitHash: commit}
}

// RAGIndexing is the target of a project index rebuild for one branch
func RAGIndexing(projectID uint, branch string) Target {
	return Target{ProjectID: projectID, Branch: branch, Type: model.LockTypeRAGIndexing}
}
