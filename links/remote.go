package links

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/teranos/pagesync/types"
)

// remoteLink accumulates an ac:link element while its children stream by.
type remoteLink struct {
	line, column int
	anchor       string
	ref          string // inner ri:* element
	attrs        map[string]string
	text         strings.Builder
	inBody       bool
}

// ExtractRemote extracts links from storage markup. User mentions are not
// links and are dropped. Malformed markup yields whatever could be read.
func ExtractRemote(markup string) []Link {
	var out []Link
	z := html.NewTokenizer(strings.NewReader(markup))
	z.AllowCDATA(true)

	line, col := 1, 1
	var cur *remoteLink
	var anchor *Link
	var anchorText strings.Builder

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		raw := z.Raw()
		startLine, startCol := line, col
		line, col = advance(raw, line, col)

		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			attrs := attrMap(tok.Attr)
			switch {
			case tok.Data == "ac:link":
				cur = &remoteLink{line: startLine, column: startCol, anchor: attrs["ac:anchor"]}
				if tt == html.SelfClosingTagToken {
					out = appendRemote(out, cur)
					cur = nil
				}
			case cur != nil && strings.HasPrefix(tok.Data, "ri:") && cur.ref == "":
				cur.ref = tok.Data
				cur.attrs = attrs
			case cur != nil && (tok.Data == "ac:plain-text-link-body" || tok.Data == "ac:link-body"):
				cur.inBody = tt == html.StartTagToken
			case tok.Data == "a" && cur == nil && tt == html.StartTagToken:
				href := strings.TrimSpace(attrs["href"])
				if href == "" {
					continue
				}
				typ := types.LinkExternal
				if strings.HasPrefix(href, "#") {
					typ = types.LinkAnchor
				}
				anchor = &Link{Type: typ, Target: href, Line: startLine, Column: startCol}
				anchorText.Reset()
			}
		case html.EndTagToken:
			switch {
			case tok.Data == "ac:link" && cur != nil:
				out = appendRemote(out, cur)
				cur = nil
			case cur != nil && (tok.Data == "ac:plain-text-link-body" || tok.Data == "ac:link-body"):
				cur.inBody = false
			case tok.Data == "a" && anchor != nil:
				anchor.Text = strings.Join(strings.Fields(anchorText.String()), " ")
				out = append(out, *anchor)
				anchor = nil
			}
		case html.TextToken:
			switch {
			case cur != nil && cur.inBody:
				cur.text.WriteString(tok.Data)
			case anchor != nil:
				anchorText.WriteString(tok.Data)
			}
		case html.CommentToken:
			if cur != nil && cur.inBody && strings.HasPrefix(tok.Data, "[CDATA[") && strings.HasSuffix(tok.Data, "]]") {
				cur.text.WriteString(tok.Data[len("[CDATA[") : len(tok.Data)-2])
			}
		}
	}
}

func appendRemote(out []Link, r *remoteLink) []Link {
	l := Link{
		Line:   r.line,
		Column: r.column,
		Text:   strings.Join(strings.Fields(r.text.String()), " "),
	}
	switch r.ref {
	case "ri:user":
		return out
	case "ri:page", "ri:content-entity", "ri:blog-post":
		l.Type = types.LinkInternal
		l.PageID = r.attrs["ri:content-id"]
		l.Target = l.PageID
		if l.Target == "" {
			l.PageTitle = r.attrs["ri:content-title"]
			l.SpaceKey = r.attrs["ri:space-key"]
			l.Target = l.PageTitle
		}
	case "ri:attachment":
		l.Type = types.LinkAttachment
		l.Filename = r.attrs["ri:filename"]
		l.Target = l.Filename
	case "ri:url":
		l.Type = types.LinkExternal
		l.Target = r.attrs["ri:value"]
	case "":
		if r.anchor == "" {
			return out
		}
		l.Type = types.LinkAnchor
		l.Target = "#" + r.anchor
		return append(out, l)
	default:
		return out
	}
	if l.Target == "" {
		return out
	}
	return append(out, l)
}

func attrMap(attrs []html.Attribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		m[key] = a.Val
	}
	return m
}

// advance moves a 1-based line/column position past raw.
func advance(raw []byte, line, col int) (int, int) {
	if n := bytes.Count(raw, []byte{'\n'}); n > 0 {
		line += n
		col = 1
		raw = raw[bytes.LastIndexByte(raw, '\n')+1:]
	}
	return line, col + len([]rune(string(raw)))
}
