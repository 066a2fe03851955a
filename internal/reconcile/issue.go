// Package reconcile deduplicates issue history across the revisions of a pull request.
package reconcile

import (
	"strings"
)

// Issue status values as exchanged with the AI service
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// reasonPrefixLen is the number of reason characters that take part in a fingerprint
const reasonPrefixLen = 50

// lineBucketSize groups nearby line numbers so small drift still matches
const lineBucketSize = 3

// Issue is a previously reported finding as sent back to the AI service.
// Pointer fields are optional in the wire format.
type Issue struct {
	ID                      string  `json:"id,omitempty"`
	Type                    string  `json:"type,omitempty"`
	Severity                string  `json:"severity"`
	Reason                  *string `json:"reason,omitempty"`
	SuggestedFixDescription string  `json:"suggestedFixDescription,omitempty"`
	SuggestedFixDiff        string  `json:"suggestedFixDiff,omitempty"`
	File                    string  `json:"file"`
	Line                    *int    `json:"line,omitempty"`
	Branch                  string  `json:"branch,omitempty"`
	PullRequestID           string  `json:"pullRequestId,omitempty"`
	Status                  string  `json:"status"`
	Category                string  `json:"category,omitempty"`
	PRVersion               *int    `json:"prVersion,omitempty"`
	ResolvedDescription     string  `json:"resolvedDescription,omitempty"`
	ResolvedByCommit        string  `json:"resolvedByCommit,omitempty"`
	ResolvedInAnalysisID    *uint   `json:"resolvedInAnalysisId,omitempty"`
}

// IsResolved reports whether the issue carries a resolved status
func (i Issue) IsResolved() bool {
	return strings.EqualFold(i.Status, StatusResolved)
}

// Revision returns the PR version the issue was reported in, 0 if unknown
func (i Issue) Revision() int {
	if i.PRVersion == nil {
		return 0
	}
	return *i.PRVersion
}

// Fingerprint is the grouping key used during deduplication
type Fingerprint struct {
	File         string
	LineBucket   int
	Severity     string
	ReasonPrefix string
}

// FingerprintOf derives the fingerprint of an issue: file, line/3 (integer division,
// 0 when the line is unknown), severity, and the lowercased, trimmed first 50
// characters of the reason.
func FingerprintOf(i Issue) Fingerprint {
	bucket := 0
	if i.Line != nil {
		bucket = *i.Line / lineBucketSize
	}

	reason := ""
	if i.Reason != nil {
		reason = *i.Reason
	}
	if r := []rune(reason); len(r) > reasonPrefixLen {
		reason = string(r[:reasonPrefixLen])
	}

	return Fingerprint{
		File:         i.File,
		LineBucket:   bucket,
		Severity:     i.Severity,
		ReasonPrefix: strings.ToLower(strings.TrimSpace(reason)),
	}
}
