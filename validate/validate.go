// Package validate reports content problems in local documents: broken or
// untracked links, unbalanced macro fences, oversized documents and folder
// structure issues. Problems are returned as issues, never as errors; an
// error means a collaborator failed.
package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/teranos/pagesync/links"
	"github.com/teranos/pagesync/mdscan"
	"github.com/teranos/pagesync/types"
)

// Severity of an issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText renders the severity name in JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Code identifies the kind of issue.
type Code string

const (
	LinkBroken          Code = "LINK_BROKEN"
	LinkUntracked       Code = "LINK_UNTRACKED"
	MacroUnclosed       Code = "MACRO_UNCLOSED"
	MacroUnmatchedClose Code = "MACRO_UNMATCHED_CLOSE"
	SizeExceeded        Code = "SIZE_EXCEEDED"
	FolderEmpty         Code = "FOLDER_EMPTY"
	FolderMissingIndex  Code = "FOLDER_MISSING_INDEX"
)

// Issue is one finding. Line and Column are 1-based; zero when the issue
// concerns the whole file or directory.
type Issue struct {
	Path     string   `json:"path"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s %s: %s", i.Path, i.Line, i.Column, i.Severity, i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", i.Path, i.Severity, i.Code, i.Message)
}

// Known is what the validator needs to know about tracked state.
type Known interface {
	links.PathIndex
	// FileExists reports whether a root-relative path exists on disk.
	FileExists(path string) bool
}

// DefaultMaxBytes is the body size above which SIZE_EXCEEDED is reported.
// Frontmatter is local-only and does not count.
const DefaultMaxBytes = 500 * 1024

// Options tune validation.
type Options struct {
	MaxBytes int // zero means DefaultMaxBytes; negative disables the check
}

func (o Options) maxBytes() int {
	if o.MaxBytes == 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

// File validates one document body at a root-relative path. content is
// the body without frontmatter, which is what a push sends; the size
// limit is measured on it rather than on the file on disk.
func File(ctx context.Context, path, content string, known Known, opts Options) ([]Issue, error) {
	var issues []Issue

	if max := opts.maxBytes(); max > 0 && len(content) > max {
		issues = append(issues, Issue{
			Path:     path,
			Severity: SeverityWarning,
			Code:     SizeExceeded,
			Message:  fmt.Sprintf("document body is %d bytes, over the %d byte limit", len(content), max),
		})
	}

	for _, m := range mdscan.CheckMacros(mdscan.Lines(content)) {
		if m.Unclosed {
			issues = append(issues, Issue{
				Path: path, Line: m.Line, Column: 1, Severity: SeverityError, Code: MacroUnclosed,
				Message: fmt.Sprintf("macro block %q is never closed", m.Name),
			})
			continue
		}
		issues = append(issues, Issue{
			Path: path, Line: m.Line, Column: 1, Severity: SeverityError, Code: MacroUnmatchedClose,
			Message: "closing ::: has no matching open",
		})
	}

	extracted := links.ExtractLocal(content)
	resolved, err := links.Resolve(ctx, path, extracted, known)
	if err != nil {
		return nil, err
	}
	for _, r := range resolved {
		if r.Type != types.LinkInternal || !r.Broken {
			continue
		}
		if r.TargetPath != "" && known.FileExists(r.TargetPath) {
			issues = append(issues, Issue{
				Path: path, Line: r.Line, Column: r.Column, Severity: SeverityWarning, Code: LinkUntracked,
				Message: fmt.Sprintf("link target %q exists but is not tracked", r.Target),
			})
			continue
		}
		issues = append(issues, Issue{
			Path: path, Line: r.Line, Column: r.Column, Severity: SeverityError, Code: LinkBroken,
			Message: fmt.Sprintf("broken link to %q", r.Target),
		})
	}

	sortIssues(issues)
	return issues, nil
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
