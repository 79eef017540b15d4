// Package mdscan scans Markdown for the regions the codec, the link
// extractor and the validator must leave alone: fenced code blocks and
// inline code spans. Scanning is an explicit state machine so "never
// rewrite inside code" holds by construction.
package mdscan

import (
	"strings"
	"unicode/utf8"
)

// State is the scanner's position relative to code.
type State int

const (
	Normal State = iota
	InCodeSpan
	InFencedBlock
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case InCodeSpan:
		return "in_code_span"
	case InFencedBlock:
		return "in_fenced_block"
	}
	return "unknown"
}

// LineKind classifies a line at block level.
type LineKind int

const (
	Text LineKind = iota
	FenceOpen
	FenceClose
	Code
)

// Line is one source line with its block classification.
type Line struct {
	Number int // 1-based
	Text   string
	Kind   LineKind
	Info   string // info string of a FenceOpen line, e.g. "go"
	Indent int    // leading spaces before the fence marker
}

// Scanner walks lines and tracks fenced-block state.
type Scanner struct {
	lines  []string
	pos    int
	state  State
	marker string
}

// NewScanner splits text on "\n" (a trailing "\r" is dropped from each line).
func NewScanner(text string) *Scanner {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return &Scanner{lines: lines}
}

// State reports whether the scanner is inside a fenced block.
func (s *Scanner) State() State { return s.state }

// Next returns the next classified line, or false at end of input.
func (s *Scanner) Next() (Line, bool) {
	if s.pos >= len(s.lines) {
		return Line{}, false
	}
	text := s.lines[s.pos]
	s.pos++
	line := Line{Number: s.pos, Text: text, Kind: Text}

	switch s.state {
	case Normal:
		if marker, info, indent, ok := fenceOpen(text); ok {
			s.state = InFencedBlock
			s.marker = marker
			line.Kind = FenceOpen
			line.Info = info
			line.Indent = indent
		}
	case InFencedBlock:
		if fenceCloses(text, s.marker) {
			s.state = Normal
			s.marker = ""
			line.Kind = FenceClose
		} else {
			line.Kind = Code
		}
	}
	return line, true
}

// Lines classifies every line of text. A fence left open runs to the end.
func Lines(text string) []Line {
	sc := NewScanner(text)
	var out []Line
	for {
		l, ok := sc.Next()
		if !ok {
			return out
		}
		out = append(out, l)
	}
}

func fenceOpen(line string) (marker, info string, indent int, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	indent = len(line) - len(trimmed)
	if indent > 3 || len(trimmed) < 3 {
		return "", "", 0, false
	}
	ch := trimmed[0]
	if ch != '`' && ch != '~' {
		return "", "", 0, false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == ch {
		n++
	}
	if n < 3 {
		return "", "", 0, false
	}
	info = strings.TrimSpace(trimmed[n:])
	if ch == '`' && strings.Contains(info, "`") {
		return "", "", 0, false
	}
	return trimmed[:n], info, indent, true
}

func fenceCloses(line, marker string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return false
	}
	trimmed = strings.TrimRight(trimmed, " \t")
	if len(trimmed) < len(marker) {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != marker[0] {
			return false
		}
	}
	return true
}

// Segment is a run of a line that is either plain text or a complete code span.
type Segment struct {
	Text   string // for code spans, includes the backtick delimiters
	Code   bool
	Offset int // byte offset within the line
}

// Content returns a code span's text without delimiters and the single
// padding space on each side, or the text itself for plain segments.
func (s Segment) Content() string {
	if !s.Code {
		return s.Text
	}
	n := 0
	for n < len(s.Text) && s.Text[n] == '`' {
		n++
	}
	inner := s.Text[n : len(s.Text)-n]
	if len(inner) >= 2 && inner[0] == ' ' && inner[len(inner)-1] == ' ' && strings.TrimSpace(inner) != "" {
		inner = inner[1 : len(inner)-1]
	}
	return inner
}

// Inline splits a line into plain and code-span segments. A backtick run
// opens a span that closes at the next run of the same length; a run with
// no partner is literal text. A backslash escapes a backtick in normal state.
func Inline(line string) []Segment {
	var out []Segment
	state := Normal
	textStart := 0
	spanStart := 0
	openLen := 0

	flush := func(end int) {
		if end > textStart {
			out = append(out, Segment{Text: line[textStart:end], Offset: textStart})
		}
	}

	i := 0
	for i < len(line) {
		c := line[i]
		switch state {
		case Normal:
			if c == '\\' && i+1 < len(line) {
				i += 2
				continue
			}
			if c == '`' {
				n := runLength(line, i)
				if closeAt(line, i+n, n) < 0 {
					i += n
					continue
				}
				flush(i)
				state = InCodeSpan
				spanStart = i
				openLen = n
				i += n
				continue
			}
			i++
		case InCodeSpan:
			if c == '`' {
				n := runLength(line, i)
				if n == openLen {
					end := i + n
					out = append(out, Segment{Text: line[spanStart:end], Code: true, Offset: spanStart})
					state = Normal
					textStart = end
					i = end
					continue
				}
				i += n
				continue
			}
			i++
		}
	}
	flush(len(line))
	return out
}

func runLength(s string, i int) int {
	n := 0
	for i+n < len(s) && s[i+n] == '`' {
		n++
	}
	return n
}

// closeAt finds the start of the next backtick run of exactly n at or after from.
func closeAt(s string, from, n int) int {
	for i := from; i < len(s); {
		if s[i] != '`' {
			i++
			continue
		}
		m := runLength(s, i)
		if m == n {
			return i
		}
		i += m
	}
	return -1
}

// Column converts a byte offset within line to a 1-based rune column.
func Column(line string, offset int) int {
	if offset > len(line) {
		offset = len(line)
	}
	return utf8.RuneCountInString(line[:offset]) + 1
}
