package codec

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/teranos/pagesync/mdscan"
)

// ToRemote converts Markdown to storage markup.
func ToRemote(markdown string, opts Options) string {
	c := &encoder{opts: opts}
	return c.blocks(mdscan.Lines(markdown))
}

type encoder struct {
	opts Options
}

var (
	headingRe  = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	hrRe       = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	listItemRe = regexp.MustCompile(`^([ \t]*)([-*+]|\d{1,9}[.)])[ \t]+(.*)$`)
	taskRe     = regexp.MustCompile(`^\[([ xX])\](?:[ \t]+(.*))?$`)
	tableSepRe = regexp.MustCompile(`^[ \t]*\|?[ \t]*:?-+:?[ \t]*(?:\|[ \t]*:?-+:?[ \t]*)*\|?[ \t]*$`)
	quoteRe    = regexp.MustCompile(`^ {0,3}> ?(.*)$`)
)

func (c *encoder) blocks(lines []mdscan.Line) string {
	var b strings.Builder
	for i := 0; i < len(lines); {
		l := lines[i]
		text := l.Text
		switch {
		case l.Kind == mdscan.FenceOpen:
			i = c.fenced(lines, i, &b)
		case l.Kind != mdscan.Text:
			b.WriteString("<p>" + escape(text) + "</p>")
			i++
		case strings.TrimSpace(text) == "":
			i++
		case c.isMacroBlock(lines, i):
			i = c.macro(lines, i, &b)
		case headingRe.MatchString(text):
			m := headingRe.FindStringSubmatch(text)
			n := strconv.Itoa(len(m[1]))
			b.WriteString("<h" + n + ">" + c.inline(strings.TrimSpace(m[2])) + "</h" + n + ">")
			i++
		case hrRe.MatchString(text):
			b.WriteString("<hr />")
			i++
		case quoteRe.MatchString(text):
			i = c.quote(lines, i, &b)
		case isTableStart(lines, i):
			i = c.table(lines, i, &b)
		case listItemRe.MatchString(text):
			i = c.list(lines, i, &b)
		default:
			i = c.paragraph(lines, i, &b)
		}
	}
	return b.String()
}

func (c *encoder) fenced(lines []mdscan.Line, i int, b *strings.Builder) int {
	open := lines[i]
	var code []string
	j := i + 1
	for ; j < len(lines); j++ {
		if lines[j].Kind != mdscan.Code {
			break
		}
		code = append(code, dedent(lines[j].Text, open.Indent))
	}
	if j < len(lines) && lines[j].Kind == mdscan.FenceClose {
		j++
	}
	lang := ""
	if f := strings.Fields(open.Info); len(f) > 0 {
		lang = f[0]
	}
	if lang != "" {
		b.WriteString(`<pre><code class="language-` + escape(lang) + `">`)
	} else {
		b.WriteString("<pre><code>")
	}
	b.WriteString(escape(strings.Join(code, "\n")))
	b.WriteString("</code></pre>")
	return j
}

func dedent(line string, n int) string {
	for n > 0 && strings.HasPrefix(line, " ") {
		line = line[1:]
		n--
	}
	return line
}

func (c *encoder) isMacroBlock(lines []mdscan.Line, i int) bool {
	if _, _, ok := mdscan.MacroOpen(lines[i].Text); !ok {
		return false
	}
	return matchMacro(lines, i) > 0
}

// matchMacro returns the index of the close fence matching the open fence at i, or -1.
func matchMacro(lines []mdscan.Line, i int) int {
	depth := 1
	for k := i + 1; k < len(lines); k++ {
		if lines[k].Kind != mdscan.Text {
			continue
		}
		if _, _, ok := mdscan.MacroOpen(lines[k].Text); ok {
			depth++
		} else if mdscan.MacroClose(lines[k].Text) {
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}

func (c *encoder) macro(lines []mdscan.Line, i int, b *strings.Builder) int {
	name, title, _ := mdscan.MacroOpen(lines[i].Text)
	end := matchMacro(lines, i)
	b.WriteString(`<ac:structured-macro ac:name="` + escape(name) + `">`)
	if title != "" {
		b.WriteString(`<ac:parameter ac:name="title">` + escape(title) + `</ac:parameter>`)
	}
	if body := c.blocks(lines[i+1 : end]); body != "" {
		b.WriteString("<ac:rich-text-body>" + body + "</ac:rich-text-body>")
	}
	b.WriteString("</ac:structured-macro>")
	return end + 1
}

func (c *encoder) quote(lines []mdscan.Line, i int, b *strings.Builder) int {
	var inner []string
	j := i
	for ; j < len(lines) && lines[j].Kind == mdscan.Text; j++ {
		m := quoteRe.FindStringSubmatch(lines[j].Text)
		if m == nil {
			break
		}
		inner = append(inner, m[1])
	}
	b.WriteString("<blockquote>" + c.blocks(mdscan.Lines(strings.Join(inner, "\n"))) + "</blockquote>")
	return j
}

func isTableStart(lines []mdscan.Line, i int) bool {
	if !strings.HasPrefix(strings.TrimSpace(lines[i].Text), "|") || i+1 >= len(lines) {
		return false
	}
	next := lines[i+1]
	return next.Kind == mdscan.Text && strings.Contains(next.Text, "-") && tableSepRe.MatchString(next.Text)
}

func (c *encoder) table(lines []mdscan.Line, i int, b *strings.Builder) int {
	b.WriteString("<table><tbody>")
	c.row(splitRow(lines[i].Text), "th", b)
	j := i + 2
	for ; j < len(lines) && lines[j].Kind == mdscan.Text; j++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[j].Text), "|") {
			break
		}
		c.row(splitRow(lines[j].Text), "td", b)
	}
	b.WriteString("</tbody></table>")
	return j
}

func (c *encoder) row(cells []string, tag string, b *strings.Builder) {
	b.WriteString("<tr>")
	for _, cell := range cells {
		b.WriteString("<" + tag + ">" + c.inline(cell) + "</" + tag + ">")
	}
	b.WriteString("</tr>")
}

// splitRow splits a pipe table row on unescaped pipes outside code spans.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}
	var cells []string
	var cur strings.Builder
	for _, seg := range mdscan.Inline(line) {
		if seg.Code {
			cur.WriteString(seg.Text)
			continue
		}
		s := seg.Text
		for k := 0; k < len(s); k++ {
			switch {
			case s[k] == '\\' && k+1 < len(s):
				cur.WriteString(s[k : k+2])
				k++
			case s[k] == '|':
				cells = append(cells, strings.TrimSpace(cur.String()))
				cur.Reset()
			default:
				cur.WriteByte(s[k])
			}
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

type listEntry struct {
	indent  int
	ordered bool
	task    bool
	checked bool
	text    string
}

type listBlock struct {
	ordered bool
	indent  int
	items   []*listItem
	parent  *listItem
}

type listItem struct {
	listEntry
	children []*listBlock
}

func indentWidth(s string) int {
	w := 0
	for _, r := range s {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}

func (c *encoder) list(lines []mdscan.Line, i int, b *strings.Builder) int {
	var entries []*listEntry
	j := i
	for ; j < len(lines) && lines[j].Kind == mdscan.Text; j++ {
		text := lines[j].Text
		if strings.TrimSpace(text) == "" {
			break
		}
		if m := listItemRe.FindStringSubmatch(text); m != nil && !hrRe.MatchString(text) {
			e := &listEntry{indent: indentWidth(m[1]), ordered: m[2][0] >= '0' && m[2][0] <= '9', text: m[3]}
			if t := taskRe.FindStringSubmatch(e.text); t != nil {
				e.task = true
				e.checked = t[1] != " "
				e.text = t[2]
			}
			entries = append(entries, e)
			continue
		}
		if indentWidth(text) == 0 {
			break
		}
		last := entries[len(entries)-1]
		last.text += " " + strings.TrimSpace(text)
	}

	var roots []*listBlock
	var stack []*listBlock
	for _, e := range entries {
		for len(stack) > 0 && e.indent < stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}
		var top *listBlock
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		switch {
		case top == nil:
			top = &listBlock{ordered: e.ordered, indent: e.indent}
			roots = append(roots, top)
			stack = append(stack, top)
		case e.indent > top.indent:
			parent := top.items[len(top.items)-1]
			top = &listBlock{ordered: e.ordered, indent: e.indent, parent: parent}
			parent.children = append(parent.children, top)
			stack = append(stack, top)
		case e.ordered != top.ordered:
			stack = stack[:len(stack)-1]
			sibling := &listBlock{ordered: e.ordered, indent: e.indent, parent: top.parent}
			if top.parent == nil {
				roots = append(roots, sibling)
			} else {
				top.parent.children = append(top.parent.children, sibling)
			}
			top = sibling
			stack = append(stack, top)
		}
		top.items = append(top.items, &listItem{listEntry: *e})
	}

	for _, r := range roots {
		c.renderList(r, b)
	}
	return j
}

func (c *encoder) renderList(l *listBlock, b *strings.Builder) {
	tag := "ul"
	switch {
	case l.ordered:
		tag = "ol"
		b.WriteString("<ol>")
	case l.hasTask():
		b.WriteString(`<ul class="task-list">`)
	default:
		b.WriteString("<ul>")
	}
	for _, it := range l.items {
		b.WriteString("<li>")
		if it.task {
			if it.checked {
				b.WriteString(`<input type="checkbox" checked="checked" />`)
			} else {
				b.WriteString(`<input type="checkbox" />`)
			}
		}
		b.WriteString(c.inline(it.text))
		for _, child := range it.children {
			c.renderList(child, b)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</" + tag + ">")
}

func (l *listBlock) hasTask() bool {
	for _, it := range l.items {
		if it.task {
			return true
		}
	}
	return false
}

func (c *encoder) paragraph(lines []mdscan.Line, i int, b *strings.Builder) int {
	parts := []string{c.inline(strings.TrimSpace(lines[i].Text))}
	j := i + 1
	for ; j < len(lines); j++ {
		l := lines[j]
		if l.Kind != mdscan.Text || strings.TrimSpace(l.Text) == "" || startsBlock(lines, j) {
			break
		}
		parts = append(parts, c.inline(strings.TrimSpace(l.Text)))
	}
	b.WriteString("<p>" + strings.Join(parts, "<br />") + "</p>")
	return j
}

func startsBlock(lines []mdscan.Line, i int) bool {
	text := lines[i].Text
	if _, _, ok := mdscan.MacroOpen(text); ok || mdscan.MacroClose(text) {
		return true
	}
	return headingRe.MatchString(text) || hrRe.MatchString(text) || quoteRe.MatchString(text) ||
		listItemRe.MatchString(text) || isTableStart(lines, i)
}

// Code spans are swapped for private-use placeholders while inline rules
// run, so no rule can see inside them.
const (
	phOpen  = "\uE000"
	phClose = "\uE001"
)

var placeholderRe = regexp.MustCompile(phOpen + `(\d+)` + phClose)

type spanContext struct {
	code []string // rendered <code> elements
	raw  []string // original backtick text
}

func (c *encoder) inline(line string) string {
	ctx := &spanContext{}
	var b strings.Builder
	for _, seg := range mdscan.Inline(line) {
		if seg.Code {
			b.WriteString(phOpen + strconv.Itoa(len(ctx.code)) + phClose)
			ctx.code = append(ctx.code, "<code>"+escape(seg.Content())+"</code>")
			ctx.raw = append(ctx.raw, seg.Text)
			continue
		}
		b.WriteString(seg.Text)
	}
	out := c.spans(b.String(), ctx)
	return ctx.restore(out, ctx.code)
}

func (ctx *spanContext) restore(s string, with []string) string {
	if len(with) == 0 {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.Atoi(m[len(phOpen) : len(m)-len(phClose)])
		if err != nil || n >= len(with) {
			return m
		}
		return with[n]
	})
}

type inlineRule struct {
	re     *regexp.Regexp
	render func(c *encoder, ctx *spanContext, text string, m []int) (string, bool)
}

var inlineRules []inlineRule

func init() {
	inlineRules = []inlineRule{
		{escapedRe, renderEscape},
		{regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]*)(?:[ \t]+"([^"]*)")?\)(?:\{((?:\s*(?:width|height)=\d+%?)+\s*)\})?`), renderImage},
		{regexp.MustCompile(`\[((?:\\.|[^\[\]\\]|\[(?:\\.|[^\]\\])*\])*)\]\(([^)\s]*)(?:[ \t]+"([^"]*)")?\)`), renderLink},
		{regexp.MustCompile(`<((?:https?|mailto):[^>\s]+)>`), renderAutolink},
		{regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_-]*):([^}|\s]+)(?:\|([^}]*))?\}`), renderReference},
		{regexp.MustCompile(`\*\*((?:\\.|[^\\])+?)\*\*`), wrapRule("strong")},
		{regexp.MustCompile(`~~((?:\\.|[^\\])+?)~~`), wrapRule("del")},
		{regexp.MustCompile(`\*((?:\\.|[^*\s\\])(?:(?:\\.|[^*\\])*(?:\\.|[^*\s\\]))?)\*`), wrapRule("em")},
		{regexp.MustCompile(`_((?:\\.|[^_\s\\])(?:(?:\\.|[^_\\])*(?:\\.|[^_\s\\]))?)_`), renderUnderscore},
	}
}

// spans applies the inline rules left to right. At each step the earliest
// match wins, ties going to the rule listed first. A rule that declines its
// match leaves the first character as literal text.
func (c *encoder) spans(text string, ctx *spanContext) string {
	var out strings.Builder
	pos := 0
	for pos < len(text) {
		rest := text[pos:]
		best := -1
		var bm []int
		for ri, r := range inlineRules {
			m := r.re.FindStringSubmatchIndex(rest)
			if m != nil && (best < 0 || m[0] < bm[0]) {
				best, bm = ri, m
			}
		}
		if best < 0 {
			out.WriteString(escape(rest))
			break
		}
		for k := range bm {
			if bm[k] >= 0 {
				bm[k] += pos
			}
		}
		out.WriteString(escape(text[pos:bm[0]]))
		html, ok := inlineRules[best].render(c, ctx, text, bm)
		if !ok {
			_, size := utf8.DecodeRuneInString(text[bm[0]:])
			out.WriteString(escape(text[bm[0] : bm[0]+size]))
			pos = bm[0] + size
			continue
		}
		out.WriteString(html)
		pos = bm[1]
	}
	return out.String()
}

func group(text string, m []int, n int) string {
	if 2*n+1 >= len(m) || m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

// unescapeMarkdown drops the backslash from each escaped punctuation character.
func unescapeMarkdown(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return escapedRe.ReplaceAllString(s, "$1")
}

var escapedRe = regexp.MustCompile("\\\\([!-/:-@\\[-`{-~])")

func renderEscape(_ *encoder, _ *spanContext, text string, m []int) (string, bool) {
	return escape(group(text, m, 1)), true
}

func wrapRule(tag string) func(*encoder, *spanContext, string, []int) (string, bool) {
	return func(c *encoder, ctx *spanContext, text string, m []int) (string, bool) {
		return "<" + tag + ">" + c.spans(group(text, m, 1), ctx) + "</" + tag + ">", true
	}
}

func renderUnderscore(c *encoder, ctx *spanContext, text string, m []int) (string, bool) {
	if m[0] > 0 && isWordByte(text[m[0]-1]) || m[1] < len(text) && isWordByte(text[m[1]]) {
		return "", false
	}
	return wrapRule("em")(c, ctx, text, m)
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}

func renderAutolink(_ *encoder, _ *spanContext, text string, m []int) (string, bool) {
	u := group(text, m, 1)
	return `<a href="` + escape(u) + `">` + escape(u) + `</a>`, true
}

func renderImage(_ *encoder, _ *spanContext, text string, m []int) (string, bool) {
	alt, src, size := group(text, m, 1), group(text, m, 2), group(text, m, 4)
	if strings.Contains(src, phOpen) {
		return "", false
	}
	width, height := parseSize(size)
	if name, ok := AttachmentFilename(src); ok {
		var b strings.Builder
		b.WriteString("<ac:image")
		if alt != "" {
			b.WriteString(` ac:alt="` + escape(alt) + `"`)
		}
		if width != "" {
			b.WriteString(` ac:width="` + escape(width) + `"`)
		}
		if height != "" {
			b.WriteString(` ac:height="` + escape(height) + `"`)
		}
		b.WriteString(`><ri:attachment ri:filename="` + escape(name) + `" /></ac:image>`)
		return b.String(), true
	}
	out := `<img src="` + escape(src) + `" alt="` + escape(alt) + `"`
	if width != "" {
		out += ` width="` + escape(width) + `"`
	}
	if height != "" {
		out += ` height="` + escape(height) + `"`
	}
	return out + " />", true
}

func parseSize(attrs string) (width, height string) {
	for _, f := range strings.Fields(attrs) {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "width":
			width = v
		case "height":
			height = v
		}
	}
	return width, height
}

func renderLink(c *encoder, ctx *spanContext, text string, m []int) (string, bool) {
	label, target := group(text, m, 1), group(text, m, 2)
	if strings.Contains(target, phOpen) {
		return "", false
	}
	rawLabel := ctx.restore(unescapeMarkdown(label), ctx.raw)

	if name, ok := AttachmentFilename(target); ok {
		out := `<ac:link><ri:attachment ri:filename="` + escape(name) + `" />`
		if rawLabel != "" {
			out += "<ac:plain-text-link-body>" + cdata(rawLabel) + "</ac:plain-text-link-body>"
		}
		return out + "</ac:link>", true
	}

	if c.opts.Pages != nil && !HasScheme(target) && !strings.HasPrefix(target, "#") {
		path, anchor, _ := strings.Cut(target, "#")
		if strings.HasSuffix(strings.ToLower(path), ".md") {
			if ref, ok := c.opts.Pages.PageFor(path); ok {
				out := "<ac:link"
				if anchor != "" {
					out += ` ac:anchor="` + escape(anchor) + `"`
				}
				out += `><ri:page ri:content-id="` + escape(ref.ID) + `"`
				if ref.Title != "" {
					out += ` ri:content-title="` + escape(ref.Title) + `"`
				}
				if ref.SpaceKey != "" {
					out += ` ri:space-key="` + escape(ref.SpaceKey) + `"`
				}
				out += " />"
				if rawLabel != "" {
					out += "<ac:plain-text-link-body>" + cdata(rawLabel) + "</ac:plain-text-link-body>"
				}
				return out + "</ac:link>", true
			}
		}
	}

	return `<a href="` + escape(target) + `">` + c.spans(label, ctx) + "</a>", true
}

type macroParam struct {
	name  string
	value string
}

func renderReference(c *encoder, _ *spanContext, text string, m []int) (string, bool) {
	ns, key, options := group(text, m, 1), group(text, m, 2), group(text, m, 3)
	if !c.opts.isReference(ns) || strings.Contains(text[m[0]:m[1]], phOpen) {
		return "", false
	}
	params := []macroParam{{"key", key}}
	params = append(params, parseReferenceOptions(options)...)

	var b strings.Builder
	b.WriteString(`<ac:structured-macro ac:name="` + escape(strings.ToLower(ns)) + `">`)
	for _, p := range params {
		b.WriteString(`<ac:parameter ac:name="` + escape(p.name) + `">` + escape(p.value) + "</ac:parameter>")
	}
	b.WriteString("</ac:structured-macro>")
	return b.String(), true
}

// parseReferenceOptions reads "|"-separated option segments. A segment with
// "=" is one key=value option whose value may hold commas; any other
// segment is a comma-separated list of boolean flags.
func parseReferenceOptions(options string) []macroParam {
	var params []macroParam
	for _, seg := range strings.Split(options, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if k, v, ok := strings.Cut(seg, "="); ok {
			params = append(params, macroParam{strings.TrimSpace(k), strings.TrimSpace(v)})
			continue
		}
		for _, flag := range strings.Split(seg, ",") {
			if flag = strings.TrimSpace(flag); flag != "" {
				params = append(params, macroParam{flag, "true"})
			}
		}
	}
	return params
}
