package codec

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/pagesync/mdscan"
)

// FromRemote converts storage markup to Markdown. The result always ends
// with exactly one newline and has no leading or trailing blank lines.
func FromRemote(markup string, opts Options) string {
	d := &decoder{opts: opts}
	out := strings.Join(d.blocks(parseStorage(markup).children), "\n\n")
	return strings.Trim(out, "\n") + "\n"
}

type decoder struct {
	opts Options
}

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "blockquote": true, "pre": true, "hr": true,
	"div": true, "section": true, "ac:layout": true, "ac:layout-section": true,
	"ac:layout-cell": true, "ac:task-list": true,
}

func (d *decoder) isBlock(n *node) bool {
	if n.tag == "ac:structured-macro" {
		return !d.isReference(n)
	}
	return blockTags[n.tag]
}

func (d *decoder) isReference(n *node) bool {
	if n.tag != "ac:structured-macro" || !d.opts.isReference(n.attr("ac:name")) {
		return false
	}
	_, hasKey := n.param("key")
	return hasKey && n.child("ac:rich-text-body") == nil
}

// blocks renders the children of a block container. Runs of inline
// children between blocks become paragraphs.
func (d *decoder) blocks(children []*node) []string {
	var out []string
	var run []*node
	flush := func() {
		if s := paragraph(d.raw(run)); s != "" {
			out = append(out, s)
		}
		run = nil
	}
	for _, n := range children {
		if n.isText() || !d.isBlock(n) {
			run = append(run, n)
			continue
		}
		flush()
		if s := d.block(n); s != "" {
			out = append(out, s)
		}
	}
	flush()
	return out
}

func (d *decoder) block(n *node) string {
	switch n.tag {
	case "p":
		return paragraph(d.raw(n.children))
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.tag[1] - '0')
		return strings.Repeat("#", level) + " " + oneLine(clean(d.raw(n.children)))
	case "hr":
		return "---"
	case "pre":
		code := n.child("code")
		if code == nil {
			return fence("", n.textContent())
		}
		return fence(languageOf(code.attr("class")), code.textContent())
	case "ul", "ol", "ac:task-list":
		return d.list(n, 0)
	case "table":
		return d.table(n)
	case "blockquote":
		inner := strings.Join(d.blocks(n.children), "\n\n")
		lines := strings.Split(inner, "\n")
		for i, l := range lines {
			if l == "" {
				lines[i] = ">"
			} else {
				lines[i] = "> " + l
			}
		}
		return strings.Join(lines, "\n")
	case "ac:structured-macro":
		return d.macroBlock(n)
	default:
		return strings.Join(d.blocks(n.children), "\n\n")
	}
}

func languageOf(class string) string {
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			return lang
		}
	}
	return ""
}

func fence(lang, code string) string {
	code = strings.TrimSuffix(code, "\n")
	marker := "```"
	for strings.Contains(code, marker) {
		marker += "`"
	}
	if code == "" {
		return marker + lang + "\n" + marker
	}
	return marker + lang + "\n" + code + "\n" + marker
}

func (d *decoder) macroBlock(n *node) string {
	name := strings.ToLower(n.attr("ac:name"))
	switch name {
	case "":
		return ""
	case "code", "noformat":
		lang, _ := n.param("language")
		body := n.child("ac:plain-text-body")
		if body == nil {
			return fence(lang, "")
		}
		return fence(lang, body.textContent())
	}

	header := ":::" + name
	if title, ok := n.param("title"); ok && strings.TrimSpace(title) != "" {
		header += " " + strings.TrimSpace(title)
	}
	if body := n.child("ac:rich-text-body"); body != nil {
		if inner := strings.Join(d.blocks(body.children), "\n\n"); inner != "" {
			return header + "\n" + inner + "\n:::"
		}
	}
	return header + "\n:::"
}

func (d *decoder) list(n *node, depth int) string {
	ordered := n.tag == "ol"
	indent := strings.Repeat("  ", depth)
	var lines []string
	idx := 0
	for _, li := range n.children {
		if li.tag != "li" && li.tag != "ac:task" {
			continue
		}
		idx++
		marker := "-"
		if ordered {
			marker = strconv.Itoa(idx) + "."
		}
		text, nested := d.listItem(li, depth)
		lines = append(lines, indent+marker+" "+text)
		lines = append(lines, nested...)
	}
	return strings.Join(lines, "\n")
}

func (d *decoder) listItem(li *node, depth int) (string, []string) {
	if li.tag == "ac:task" {
		prefix := "[ ] "
		if status := li.child("ac:task-status"); status != nil && strings.TrimSpace(status.textContent()) == "complete" {
			prefix = "[x] "
		}
		body := ""
		if b := li.child("ac:task-body"); b != nil {
			body = oneLine(clean(d.raw(b.children)))
		}
		return strings.TrimRight(prefix+body, " "), nil
	}

	var inline []*node
	var nested []string
	prefix := ""
	seenContent := false
	for _, c := range li.children {
		switch {
		case c.tag == "input" && strings.EqualFold(c.attr("type"), "checkbox") && !seenContent:
			prefix = "[ ] "
			if _, checked := c.attrs["checked"]; checked {
				prefix = "[x] "
			}
		case c.tag == "ul" || c.tag == "ol" || c.tag == "ac:task-list":
			nested = append(nested, strings.Split(d.list(c, depth+1), "\n")...)
		default:
			if !c.isText() || strings.TrimSpace(c.text) != "" {
				seenContent = true
			}
			inline = append(inline, c)
		}
	}
	return strings.TrimRight(prefix+oneLine(clean(d.raw(inline))), " "), nested
}

func (d *decoder) table(n *node) string {
	var rows [][]string
	var collect func(*node)
	collect = func(m *node) {
		for _, c := range m.children {
			switch c.tag {
			case "thead", "tbody", "tfoot":
				collect(c)
			case "tr":
				var cells []string
				for _, cell := range c.children {
					if cell.tag == "th" || cell.tag == "td" {
						text := oneLine(clean(d.raw(cell.children)))
						cells = append(cells, strings.ReplaceAll(text, "|", `\|`))
					}
				}
				rows = append(rows, cells)
			}
		}
	}
	collect(n)
	if len(rows) == 0 {
		return ""
	}

	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	line := func(cells []string) string {
		padded := make([]string, cols)
		copy(padded, cells)
		return "| " + strings.Join(padded, " | ") + " |"
	}
	sep := make([]string, cols)
	for i := range sep {
		sep[i] = "---"
	}
	out := []string{line(rows[0]), line(sep)}
	for _, r := range rows[1:] {
		out = append(out, line(r))
	}
	return strings.Join(out, "\n")
}

var softBreakRe = regexp.MustCompile(`[ \t]*\r?\n[ \t]*`)

// raw renders inline nodes without trimming; br becomes "\n".
func (d *decoder) raw(nodes []*node) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(d.inline(n))
	}
	return b.String()
}

func (d *decoder) inline(n *node) string {
	if n.isText() {
		return escapeText(softBreakRe.ReplaceAllString(n.text, " "))
	}
	switch n.tag {
	case "br":
		return "\n"
	case "strong", "b":
		return wrap("**", d.raw(n.children))
	case "em", "i":
		return wrap("*", d.raw(n.children))
	case "del", "s", "strike":
		return wrap("~~", d.raw(n.children))
	case "code":
		return codeSpan(n.textContent())
	case "a":
		href := n.attr("href")
		text := oneLine(clean(d.raw(n.children)))
		if href == "" {
			return text
		}
		if text == "" {
			text = href
		}
		return "[" + text + "](" + href + ")"
	case "img":
		return "![" + n.attr("alt") + "](" + n.attr("src") + ")" + sizeBlock(n.attr("width"), n.attr("height"))
	case "ac:image":
		return d.image(n)
	case "ac:link":
		return d.link(n)
	case "ac:structured-macro":
		if d.isReference(n) {
			return d.reference(n)
		}
		if body := n.child("ac:rich-text-body"); body != nil {
			return d.raw(body.children)
		}
		return ""
	case "p", "li", "div":
		return d.raw(n.children) + "\n"
	case "input", "ac:emoticon", "ac:placeholder", "ac:parameter",
		"ri:attachment", "ri:page", "ri:user", "ri:url":
		return ""
	default:
		return d.raw(n.children)
	}
}

// wrap surrounds inner with an emphasis marker, keeping edge whitespace
// outside the markers so the result still parses as emphasis.
func wrap(marker, inner string) string {
	trimmed := strings.TrimSpace(inner)
	if trimmed == "" {
		return inner
	}
	lead := inner[:strings.Index(inner, trimmed)]
	trail := inner[len(lead)+len(trimmed):]
	return lead + marker + trimmed + marker + trail
}

func codeSpan(text string) string {
	if !strings.Contains(text, "`") {
		return "`" + text + "`"
	}
	fence := "``"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	return fence + " " + text + " " + fence
}

func sizeBlock(width, height string) string {
	var parts []string
	if width != "" {
		parts = append(parts, "width="+width)
	}
	if height != "" {
		parts = append(parts, "height="+height)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func (d *decoder) image(n *node) string {
	var src string
	if att := n.child("ri:attachment"); att != nil {
		src = AttachmentPath(att.attr("ri:filename"))
	} else if u := n.child("ri:url"); u != nil {
		src = u.attr("ri:value")
	} else {
		return ""
	}
	return "![" + n.attr("ac:alt") + "](" + src + ")" + sizeBlock(n.attr("ac:width"), n.attr("ac:height"))
}

func (d *decoder) linkText(n *node) string {
	if body := n.child("ac:plain-text-link-body"); body != nil {
		return escapeText(oneLine(body.textContent()))
	}
	if body := n.child("ac:link-body"); body != nil {
		return oneLine(clean(d.raw(body.children)))
	}
	return ""
}

func (d *decoder) link(n *node) string {
	text := d.linkText(n)
	anchor := n.attr("ac:anchor")

	if att := n.child("ri:attachment"); att != nil {
		name := att.attr("ri:filename")
		if text == "" {
			text = escapeText(name)
		}
		return "[" + text + "](" + AttachmentPath(name) + ")"
	}
	if page := n.child("ri:page"); page != nil {
		ref := PageRef{
			ID:       page.attr("ri:content-id"),
			Title:    page.attr("ri:content-title"),
			SpaceKey: page.attr("ri:space-key"),
		}
		if text == "" {
			text = escapeText(ref.Title)
		}
		if d.opts.Pages != nil {
			if path, ok := d.opts.Pages.PathFor(ref); ok {
				if anchor != "" {
					path += "#" + anchor
				}
				if text == "" {
					text = path
				}
				return "[" + text + "](" + path + ")"
			}
		}
		return text
	}
	if user := n.child("ri:user"); user != nil {
		if text != "" {
			return text
		}
		for _, k := range []string{"ri:account-id", "ri:username", "ri:userkey"} {
			if v := user.attr(k); v != "" {
				return "@" + v
			}
		}
		return ""
	}
	if anchor != "" {
		if text == "" {
			text = escapeText(anchor)
		}
		return "[" + text + "](#" + anchor + ")"
	}
	return text
}

// reference renders an inline reference macro as {ns:KEY|...}. Consecutive
// "true" parameters are grouped as comma-separated flags.
func (d *decoder) reference(n *node) string {
	key, _ := n.param("key")
	var segs []string
	var flags []string
	flush := func() {
		if len(flags) > 0 {
			segs = append(segs, strings.Join(flags, ","))
			flags = nil
		}
	}
	for _, c := range n.children {
		if c.tag != "ac:parameter" {
			continue
		}
		name := c.attr("ac:name")
		if strings.EqualFold(name, "key") {
			continue
		}
		value := c.textContent()
		if value == "true" {
			flags = append(flags, name)
			continue
		}
		flush()
		segs = append(segs, name+"="+value)
	}
	flush()

	out := "{" + strings.ToLower(n.attr("ac:name")) + ":" + strings.TrimSpace(key)
	if len(segs) > 0 {
		out += "|" + strings.Join(segs, "|")
	}
	return out + "}"
}

// clean trims each line and drops empty lines.
func clean(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// paragraph cleans s and escapes any line that would otherwise open a block.
func paragraph(s string) string {
	lines := strings.Split(clean(s), "\n")
	for i, l := range lines {
		lines[i] = escapeLineStart(l)
	}
	return strings.Join(lines, "\n")
}

func escapeLineStart(line string) string {
	if line == "" {
		return line
	}
	if m := listItemRe.FindStringSubmatchIndex(line); m != nil && line[0] >= '0' && line[0] <= '9' {
		// "1. x" becomes "1\. x"
		at := m[5] - 1
		return line[:at] + `\` + line[at:]
	}
	_, _, macro := mdscan.MacroOpen(line)
	if macro || mdscan.MacroClose(line) || line[0] == '|' ||
		headingRe.MatchString(line) || hrRe.MatchString(line) ||
		quoteRe.MatchString(line) || listItemRe.MatchString(line) {
		return `\` + line
	}
	return line
}

// escapeText backslash-escapes the characters of literal text that the
// inline rules would otherwise read as markup.
func escapeText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '*', '`', '[', ']', '{', '}', '~':
			b.WriteByte('\\')
		case '\\':
			if i+1 == len(s) || isPunct(s[i+1]) {
				b.WriteByte('\\')
			}
		case '_':
			if i == 0 || i+1 == len(s) || !isAlnum(s[i-1]) || !isAlnum(s[i+1]) {
				b.WriteByte('\\')
			}
		case '!':
			if i+1 == len(s) {
				b.WriteByte('\\')
			}
		case '<':
			if i+1 < len(s) && (s[i+1] >= 'a' && s[i+1] <= 'z' || s[i+1] >= 'A' && s[i+1] <= 'Z') {
				b.WriteByte('\\')
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isPunct(c byte) bool {
	return c >= '!' && c <= '/' || c >= ':' && c <= '@' || c >= '[' && c <= '`' || c >= '{' && c <= '~'
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
