// Package codec converts documents between the local Markdown dialect and
// the remote storage markup (XHTML with ac:/ri: namespaced macro, link and
// image elements).
//
// Both directions are total: malformed input is passed through as text,
// never rejected. Nothing inside inline code or fenced code is rewritten.
package codec

import (
	"net/url"
	"regexp"
	"strings"
)

// PageRef identifies a remote page targeted by a link.
type PageRef struct {
	ID       string
	Title    string
	SpaceKey string
}

// PageLinker maps relative Markdown links to page references and back,
// relative to the document being converted.
type PageLinker interface {
	// PageFor resolves a relative link path (fragment already removed).
	PageFor(target string) (PageRef, bool)
	// PathFor returns the relative link path for a page reference.
	PathFor(ref PageRef) (string, bool)
}

// Options control conversion.
type Options struct {
	// References lists namespaces recognized as inline references,
	// e.g. "jira" for {jira:KEY}. Matched case-insensitively. A nil
	// slice means DefaultReferences; an empty one disables references.
	References []string
	// Pages converts relative .md links to page links when set.
	Pages PageLinker
}

// DefaultReferences are the inline reference namespaces used when none are configured.
var DefaultReferences = []string{"jira"}

// DefaultOptions returns Options with the default reference namespaces.
func DefaultOptions() Options {
	return Options{References: append([]string(nil), DefaultReferences...)}
}

func (o Options) isReference(ns string) bool {
	refs := o.References
	if refs == nil {
		refs = DefaultReferences
	}
	for _, r := range refs {
		if strings.EqualFold(r, ns) {
			return true
		}
	}
	return false
}

var (
	stemAttachmentRe = regexp.MustCompile(`(?:^|/)[^/]+\.attachments/([^/]+)$`)
	flatAttachmentRe = regexp.MustCompile(`^(?:\./)?attachments/([^/]+)$`)
	schemeRe         = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// AttachmentFilename reports whether a link or image path follows the
// attachment convention, "<doc-stem>.attachments/<file>" or the flat
// "./attachments/<file>", and returns the decoded filename.
func AttachmentFilename(path string) (string, bool) {
	if path == "" || HasScheme(path) || strings.HasPrefix(path, "#") {
		return "", false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	m := stemAttachmentRe.FindStringSubmatch(path)
	if m == nil {
		m = flatAttachmentRe.FindStringSubmatch(path)
	}
	if m == nil {
		return "", false
	}
	name, err := url.PathUnescape(m[1])
	if err != nil {
		name = m[1]
	}
	return name, name != ""
}

// AttachmentPath is the flat link path for an attachment filename.
func AttachmentPath(filename string) string {
	return "./attachments/" + url.PathEscape(filename)
}

// HasScheme reports whether target starts with a URL scheme such as
// "https:" or "mailto:".
func HasScheme(target string) bool {
	return schemeRe.MatchString(target)
}

// IsImageFile reports whether a filename has a common image extension.
func IsImageFile(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	switch strings.ToLower(name[i+1:]) {
	case "png", "jpg", "jpeg", "gif", "svg", "webp", "bmp":
		return true
	}
	return false
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string {
	return xmlEscaper.Replace(s)
}

func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}
