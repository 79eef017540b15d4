package mdscan

import (
	"regexp"
	"sort"
	"strings"
)

var macroOpenRe = regexp.MustCompile(`^:::([A-Za-z][A-Za-z0-9_-]*)(?:\s+(.*))?$`)

// MacroOpen reports whether line opens a ":::name [title]" block.
func MacroOpen(line string) (name, title string, ok bool) {
	m := macroOpenRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), strings.TrimSpace(m[2]), true
}

// MacroClose reports whether line is a bare ":::" close.
func MacroClose(line string) bool {
	return strings.TrimSpace(line) == ":::"
}

// MacroIssue is an unbalanced macro fence.
type MacroIssue struct {
	Line     int
	Name     string // empty for an unmatched close
	Unclosed bool
}

// CheckMacros pairs macro fences outside fenced code. Each open without a
// close and each close without an open yields one issue, ordered by line.
func CheckMacros(lines []Line) []MacroIssue {
	type open struct {
		line int
		name string
	}
	var stack []open
	var issues []MacroIssue
	for _, l := range lines {
		if l.Kind != Text {
			continue
		}
		if name, _, ok := MacroOpen(l.Text); ok {
			stack = append(stack, open{line: l.Number, name: name})
			continue
		}
		if MacroClose(l.Text) {
			if len(stack) == 0 {
				issues = append(issues, MacroIssue{Line: l.Number})
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, o := range stack {
		issues = append(issues, MacroIssue{Line: o.line, Name: o.name, Unclosed: true})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Line < issues[j].Line })
	return issues
}
