// Package fingerprint computes content hashes of unified diffs.
//
// A diff fingerprint identifies the set of changed lines independently of the
// surrounding context, hunk order and file order, so the same logical change
// pushed to two branches (or rebased onto a new merge base) hashes identically.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// Compute returns the lowercase hex SHA-256 fingerprint of the change lines in
// rawDiff. ok is false when the diff has no added or removed lines.
func Compute(rawDiff string) (fp string, ok bool) {
	lines := ChangeLines(rawDiff)
	if len(lines) == 0 {
		return "", false
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

// ChangeLines extracts the added and removed lines of a unified diff in their
// original order, with trailing whitespace removed. File headers (+++/---) and
// "diff " metadata lines are skipped.
func ChangeLines(rawDiff string) []string {
	if rawDiff == "" {
		return nil
	}
	normalized := strings.ReplaceAll(rawDiff, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var out []string
	for _, line := range strings.Split(normalized, "\n") {
		if !isChangeLine(line) {
			continue
		}
		out = append(out, strings.TrimRightFunc(line, unicode.IsSpace))
	}
	return out
}

func isChangeLine(line string) bool {
	if line == "" {
		return false
	}
	if line[0] != '+' && line[0] != '-' {
		return false
	}
	return !strings.HasPrefix(line, "+++") && !strings.HasPrefix(line, "---")
}

// ChangedFiles returns the paths touched by rawDiff in order of appearance,
// taken from "diff --git a/X b/Y" headers. Deleted files report their old
// path.
func ChangedFiles(rawDiff string) []string {
	var files []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(rawDiff, "\n") {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		path := headerPath(strings.TrimRight(line[len("diff --git "):], "\r"))
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	return files
}

// headerPath picks the new path of "a/X b/Y", falling back to X when Y is
// /dev/null
func headerPath(header string) string {
	idx := strings.LastIndex(header, " b/")
	if idx < 0 {
		return ""
	}
	oldPath := strings.TrimPrefix(header[:idx], "a/")
	newPath := header[idx+len(" b/"):]
	if newPath == "" || newPath == "/dev/null" {
		return oldPath
	}
	return newPath
}

// Snippets returns one snippet per file section of rawDiff: the file path on
// the first line followed by its hunk lines (from the first "@@" on). At most
// maxLines hunk lines are kept per file; a cut snippet ends with "...".
// Sections without hunks, such as pure renames, are skipped.
func Snippets(rawDiff string, maxLines int) []string {
	var (
		out    []string
		path   string
		lines  []string
		inHunk bool
	)
	flush := func() {
		if path != "" && len(lines) > 0 {
			if maxLines > 0 && len(lines) > maxLines {
				lines = append(lines[:maxLines], "...")
			}
			out = append(out, path+"\n"+strings.Join(lines, "\n"))
		}
		path, lines, inHunk = "", nil, false
	}

	for _, line := range strings.Split(strings.ReplaceAll(rawDiff, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			path = headerPath(line[len("diff --git "):])
			continue
		}
		if strings.HasPrefix(line, "@@") {
			inHunk = true
		}
		if inHunk && line != "" {
			lines = append(lines, line)
		}
	}
	flush()
	return out
}
