package aiclient

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rostilos/CodeCrow-sub008/internal/reconcile"
)

// Result is the validated outcome of an AI invocation
type Result struct {
	Comment  string
	Issues   []ResultIssue
	Metadata map[string]any

	// Streamed is true when the result came from an NDJSON stream
	Streamed bool
	// Fallback is true when the plain request/response call produced the result
	Fallback bool
}

// ResultIssue is one finding reported by the AI service
type ResultIssue struct {
	ID                      string
	Severity                string
	File                    string
	Line                    *int
	Category                string
	Reason                  string
	SuggestedFixDescription string
	SuggestedFixDiff        string
	Resolved                bool
	ResolvedDescription     string
	ResolvedByCommit        string
}

// parseResult validates a candidate document. It accepts top-level comment
// and issues, or both nested in a "result" object.
func parseResult(doc []byte) (*Result, error) {
	if !gjson.ValidBytes(doc) {
		return nil, newClientError("parse", "result is not valid JSON", ErrInvalidResponse)
	}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, newClientError("parse", "result is not a JSON object", ErrInvalidResponse)
	}

	body := root
	if !hasResultFields(body) {
		nested := root.Get("result")
		if !nested.IsObject() || !hasResultFields(nested) {
			return nil, newClientError("parse", "result has no comment and issues", ErrMissingFields)
		}
		body = nested
	}

	res := &Result{
		Comment:  body.Get("comment").String(),
		Metadata: map[string]any{},
	}
	body.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "comment", "issues":
		default:
			res.Metadata[key.String()] = value.Value()
		}
		return true
	})

	// issues may be an array or an object keyed by issue id
	body.Get("issues").ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		issue := parseIssue(value)
		if issue.ID == "" && key.Type == gjson.String {
			issue.ID = key.String()
		}
		res.Issues = append(res.Issues, issue)
		return true
	})
	return res, nil
}

func hasResultFields(obj gjson.Result) bool {
	return obj.Get("comment").Exists() && obj.Get("issues").Exists()
}

func parseIssue(v gjson.Result) ResultIssue {
	issue := ResultIssue{
		ID:                      firstString(v, "id", "issueId"),
		Severity:                v.Get("severity").String(),
		File:                    firstString(v, "file", "filePath"),
		Category:                firstString(v, "category", "type"),
		Reason:                  firstString(v, "reason", "description", "message"),
		SuggestedFixDescription: v.Get("suggestedFixDescription").String(),
		SuggestedFixDiff:        v.Get("suggestedFixDiff").String(),
		ResolvedDescription:     v.Get("resolvedDescription").String(),
		ResolvedByCommit:        v.Get("resolvedByCommit").String(),
	}

	for _, name := range []string{"line", "lineNumber"} {
		if line := v.Get(name); line.Exists() && line.Type != gjson.Null {
			if n := int(line.Int()); n > 0 {
				issue.Line = &n
			}
			break
		}
	}

	if resolved := v.Get("isResolved"); resolved.Exists() {
		issue.Resolved = resolved.Bool()
	} else {
		issue.Resolved = strings.EqualFold(v.Get("status").String(), reconcile.StatusResolved)
	}
	return issue
}

func firstString(v gjson.Result, names ...string) string {
	for _, name := range names {
		if s := v.Get(name); s.Exists() && s.Type != gjson.Null {
			return s.String()
		}
	}
	return ""
}
