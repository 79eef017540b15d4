package links

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/types"
)

// PathIndex looks up tracked documents by root-relative path.
type PathIndex interface {
	LookupPath(ctx context.Context, path string) (id string, ok bool, err error)
}

// TitleIndex looks up tracked documents by page title. An empty spaceKey
// matches any space.
type TitleIndex interface {
	LookupTitle(ctx context.Context, spaceKey, title string) (id, path string, ok bool, err error)
}

// Resolved is a link after resolution. TargetPath is the root-relative path
// an internal link points at; empty when it escapes the root.
type Resolved struct {
	Link
	TargetPath string
	TargetID   string
	Broken     bool
}

// Resolve resolves links found in the document at sourcePath. Internal
// links with a relative target are looked up in idx and marked broken when
// no record exists. Remote internal links that carry a page id resolve to
// it directly; those written by title are looked up by title when idx is
// also a TitleIndex and left unresolved otherwise. Other links are never
// broken.
func Resolve(ctx context.Context, sourcePath string, links []Link, idx PathIndex) ([]Resolved, error) {
	out := make([]Resolved, 0, len(links))
	for _, l := range links {
		r := Resolved{Link: l}
		if l.Type == types.LinkInternal {
			switch {
			case l.PageID != "":
				r.TargetID = l.PageID
			case l.PageTitle != "":
				titles, ok := idx.(TitleIndex)
				if !ok {
					break
				}
				id, target, found, err := titles.LookupTitle(ctx, l.SpaceKey, l.PageTitle)
				if err != nil {
					return nil, errors.Wrapf(err, "resolve page %q from %s", l.PageTitle, sourcePath)
				}
				r.TargetID, r.TargetPath, r.Broken = id, target, !found
			default:
				target, ok := ResolvePath(sourcePath, l.Target)
				if !ok {
					r.Broken = true
					break
				}
				r.TargetPath = target
				id, found, err := idx.LookupPath(ctx, target)
				if err != nil {
					return nil, errors.Wrapf(err, "resolve %q from %s", l.Target, sourcePath)
				}
				r.TargetID = id
				r.Broken = !found
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// ResolvePath computes the root-relative path a link target points at from
// a document at sourcePath. A leading "/" is the tree root. The fragment
// and query are dropped and the path is percent-decoded. It returns false
// for targets that escape the root or name no file.
func ResolvePath(sourcePath, target string) (string, bool) {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	if target == "" {
		return "", false
	}

	var joined string
	if strings.HasPrefix(target, "/") {
		joined = path.Clean(strings.TrimLeft(target, "/"))
	} else {
		joined = path.Join(path.Dir(sourcePath), target)
	}
	if joined == "." || joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	return joined, true
}
