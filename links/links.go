// Package links extracts links from both document representations,
// resolves relative links against the document tree, and compares link
// sets between successive extractions.
package links

import (
	"strings"

	"github.com/teranos/pagesync/codec"
	"github.com/teranos/pagesync/types"
)

// Mode selects the representation a text is in.
type Mode int

const (
	Local Mode = iota
	Remote
)

func (m Mode) String() string {
	if m == Remote {
		return "remote"
	}
	return "local"
}

// Link is one extracted link. Target is the target as written: a relative
// path, URL or "#fragment" locally; a page id (or title when the id is
// absent), URL or fragment remotely.
type Link struct {
	Type     types.LinkType
	Target   string
	Text     string
	Filename string // attachment links
	PageID   string // remote internal links
	// PageTitle and SpaceKey name the target of a remote internal link
	// written by title, without a page id.
	PageTitle string
	SpaceKey  string
	Line     int
	Column   int
}

// Key identifies a link for set comparison. Resolution state is not part
// of the key.
func (l Link) Key() string {
	return l.Type.String() + "\x00" + l.Target
}

// Extract dispatches on mode.
func Extract(text string, mode Mode) []Link {
	if mode == Remote {
		return ExtractRemote(text)
	}
	return ExtractLocal(text)
}

// classify assigns exactly one type to a local link target.
func classify(target string) types.LinkType {
	switch {
	case strings.HasPrefix(target, "#"):
		return types.LinkAnchor
	case codec.HasScheme(target) || strings.HasPrefix(target, "//"):
		return types.LinkExternal
	}
	if _, ok := codec.AttachmentFilename(target); ok {
		return types.LinkAttachment
	}
	return types.LinkInternal
}

// Diff partitions two link sets.
type Diff struct {
	Added     []Link
	Removed   []Link
	Unchanged []Link
}

// Empty reports whether nothing was added or removed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Compare partitions links by (type, target). Duplicates are matched by
// count, so a link that appears twice in old and once in new is reported
// once as unchanged and once as removed. Order follows the input.
func Compare(old, new []Link) Diff {
	remaining := make(map[string]int, len(old))
	for _, l := range old {
		remaining[l.Key()]++
	}

	var d Diff
	for _, l := range new {
		k := l.Key()
		if remaining[k] > 0 {
			remaining[k]--
			d.Unchanged = append(d.Unchanged, l)
			continue
		}
		d.Added = append(d.Added, l)
	}

	for i := len(old) - 1; i >= 0; i-- {
		k := old[i].Key()
		if remaining[k] > 0 {
			remaining[k]--
			d.Removed = append(d.Removed, old[i])
		}
	}
	for i, j := 0, len(d.Removed)-1; i < j; i, j = i+1, j-1 {
		d.Removed[i], d.Removed[j] = d.Removed[j], d.Removed[i]
	}
	return d
}

// FromRecords converts stored link records back to extracted links so they
// can be compared with a fresh extraction.
func FromRecords(records []types.Link) []Link {
	out := make([]Link, 0, len(records))
	for _, r := range records {
		l := Link{Type: r.Type, Text: r.Text, Line: r.Line, Column: r.Column}
		switch r.Type {
		case types.LinkInternal:
			l.Target = r.TargetPath
			if l.Target == "" {
				l.Target = r.TargetID
				l.PageID = r.TargetID
			}
		case types.LinkAttachment:
			l.Filename = r.Filename
			l.Target = r.URL
			if l.Target == "" {
				l.Target = r.Filename
			}
		default:
			l.Target = r.URL
		}
		out = append(out, l)
	}
	return out
}

// Records converts resolved links into records for store.SetLinks.
func Records(sourceID string, resolved []Resolved) []types.Link {
	out := make([]types.Link, 0, len(resolved))
	for _, r := range resolved {
		rec := types.Link{
			SourceID: sourceID,
			Type:     r.Type,
			Broken:   r.Broken,
			Line:     r.Line,
			Column:   r.Column,
			Text:     r.Text,
		}
		switch r.Type {
		case types.LinkInternal:
			rec.TargetID = r.TargetID
			switch {
			case r.PageTitle != "":
				rec.TargetPath = r.TargetPath
			case r.PageID == "":
				rec.TargetPath = r.Target
			}
		case types.LinkAttachment:
			rec.Filename = r.Filename
			rec.URL = r.Target
		default:
			rec.URL = r.Target
		}
		out = append(out, rec)
	}
	return out
}
