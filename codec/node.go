package codec

import (
	"strings"

	"golang.org/x/net/html"
)

// node is a minimal element tree built from the storage markup token
// stream. html.Parse is not used because it would relocate the namespaced
// elements according to HTML5 insertion rules.
type node struct {
	tag      string // empty for text
	attrs    map[string]string
	text     string
	children []*node
}

var voidElements = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "col": true, "meta": true, "link": true,
}

// parseStorage tokenizes storage markup into a tree rooted at an empty
// element. Unbalanced end tags close the nearest open element of the same
// name, or are ignored.
func parseStorage(markup string) *node {
	root := &node{tag: "#root"}
	stack := []*node{root}
	z := html.NewTokenizer(strings.NewReader(markup))
	z.AllowCDATA(true)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return root
		}
		tok := z.Token()
		top := stack[len(stack)-1]
		switch tt {
		case html.TextToken:
			top.children = append(top.children, &node{text: tok.Data})
		case html.CommentToken:
			// CDATA arrives as a comment when the tokenizer declines it.
			if d := tok.Data; strings.HasPrefix(d, "[CDATA[") && strings.HasSuffix(d, "]]") {
				top.children = append(top.children, &node{text: d[len("[CDATA[") : len(d)-2]})
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			n := &node{tag: tok.Data, attrs: make(map[string]string, len(tok.Attr))}
			for _, a := range tok.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				n.attrs[key] = a.Val
			}
			top.children = append(top.children, n)
			if tt == html.StartTagToken && !voidElements[n.tag] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			for k := len(stack) - 1; k > 0; k-- {
				if stack[k].tag == tok.Data {
					stack = stack[:k]
					break
				}
			}
		}
	}
}

func (n *node) isText() bool { return n.tag == "" }

func (n *node) attr(key string) string {
	if n.attrs == nil {
		return ""
	}
	return n.attrs[key]
}

// child returns the first child element with the given tag.
func (n *node) child(tag string) *node {
	for _, c := range n.children {
		if c.tag == tag {
			return c
		}
	}
	return nil
}

// param returns the value of an ac:parameter child by name.
func (n *node) param(name string) (string, bool) {
	for _, c := range n.children {
		if c.tag == "ac:parameter" && strings.EqualFold(c.attr("ac:name"), name) {
			return c.textContent(), true
		}
	}
	return "", false
}

// textContent concatenates all descendant text.
func (n *node) textContent() string {
	if n.isText() {
		return n.text
	}
	var b strings.Builder
	var walk func(*node)
	walk = func(m *node) {
		for _, c := range m.children {
			if c.isText() {
				b.WriteString(c.text)
			} else {
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}
