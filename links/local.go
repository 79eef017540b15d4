package links

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/pagesync/codec"
	"github.com/teranos/pagesync/mdscan"
)

var (
	inlineLinkRe = regexp.MustCompile(`(!?)\[((?:[^\[\]\\]|\\.|\[[^\]]*\])*)\]\(\s*(<[^>\n]*>|[^()\s]*(?:\([^()\s]*\)[^()\s]*)*)(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)
	autolinkRe   = regexp.MustCompile(`<((?:https?|ftp|mailto):[^<>\s]+)>`)
)

// code spans are overwritten with this byte so the patterns never match
// inside them while byte offsets stay put.
const mask = '\x1a'

// ExtractLocal extracts links from Markdown. Links inside fenced blocks or
// code spans are skipped, as are images and reference definitions.
func ExtractLocal(text string) []Link {
	var out []Link
	for _, line := range mdscan.Lines(text) {
		if line.Kind != mdscan.Text {
			continue
		}
		out = append(out, extractLine(line)...)
	}
	return out
}

func extractLine(line mdscan.Line) []Link {
	masked := maskCode(line.Text)
	var found []Link

	for _, m := range inlineLinkRe.FindAllStringSubmatchIndex(masked, -1) {
		if m[0] > 0 && masked[m[0]-1] == '\\' {
			continue
		}
		if m[3] > m[2] {
			continue // image
		}
		target := masked[m[6]:m[7]]
		if strings.ContainsRune(target, mask) {
			continue
		}
		target = strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
		if target == "" {
			continue
		}
		found = append(found, newLocalLink(target, line.Text[m[4]:m[5]], line, m[0]))
	}

	for _, m := range autolinkRe.FindAllStringSubmatchIndex(masked, -1) {
		target := masked[m[2]:m[3]]
		escaped := m[0] > 0 && masked[m[0]-1] == '\\'
		if escaped || strings.ContainsRune(target, mask) || insideAny(found, line, m[0]) {
			continue
		}
		found = append(found, newLocalLink(target, target, line, m[0]))
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Column < found[j].Column })
	return found
}

func newLocalLink(target, text string, line mdscan.Line, offset int) Link {
	l := Link{
		Type:   classify(target),
		Target: target,
		Text:   text,
		Line:   line.Number,
		Column: mdscan.Column(line.Text, offset),
	}
	if name, ok := codec.AttachmentFilename(target); ok {
		l.Filename = name
	}
	return l
}

// insideAny reports whether an autolink at offset sits inside the label of
// a link already found on the line.
func insideAny(found []Link, line mdscan.Line, offset int) bool {
	col := mdscan.Column(line.Text, offset)
	for _, f := range found {
		end := f.Column + len([]rune(f.Text)) + 1
		if col > f.Column && col <= end {
			return true
		}
	}
	return false
}

func maskCode(line string) string {
	segs := mdscan.Inline(line)
	hasCode := false
	for _, s := range segs {
		if s.Code {
			hasCode = true
			break
		}
	}
	if !hasCode {
		return line
	}
	b := []byte(line)
	for _, s := range segs {
		if !s.Code {
			continue
		}
		for k := s.Offset; k < s.Offset+len(s.Text); k++ {
			b[k] = mask
		}
	}
	return string(b)
}
