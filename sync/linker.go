package sync

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/codec"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/links"
	"github.com/teranos/pagesync/store"
)

// pageLinker maps relative document links to page references through the
// record store, relative to the document being converted.
type pageLinker struct {
	ctx    context.Context
	store  store.Tx
	source string
	logger *zap.SugaredLogger
}

func (l *pageLinker) PageFor(target string) (codec.PageRef, bool) {
	p, ok := links.ResolvePath(l.source, target)
	if !ok {
		return codec.PageRef{}, false
	}
	doc, err := l.store.GetByPath(l.ctx, p)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			l.logger.Debugw("Page lookup failed", "target", p, "error", err)
		}
		return codec.PageRef{}, false
	}
	return codec.PageRef{ID: doc.ID, Title: doc.Title, SpaceKey: doc.SpaceKey}, true
}

func (l *pageLinker) PathFor(ref codec.PageRef) (string, bool) {
	if ref.ID != "" {
		doc, err := l.store.GetByID(l.ctx, ref.ID)
		if err == nil {
			return relativeTo(l.source, doc.Path), true
		}
	}
	if ref.Title == "" {
		return "", false
	}
	docs, err := l.store.List(l.ctx, store.Filter{SpaceKey: ref.SpaceKey})
	if err != nil {
		return "", false
	}
	for _, d := range docs {
		if d.Title == ref.Title {
			return relativeTo(l.source, d.Path), true
		}
	}
	return "", false
}

// relativeTo returns target as a link path from the directory of source.
func relativeTo(source, target string) string {
	dir := path.Dir(source)
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// titleFromPath derives a page title from a document file name.
func titleFromPath(p string) string {
	base := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if base == "index" {
		if dir := path.Dir(p); dir != "." {
			base = path.Base(dir)
		}
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	if base == "" {
		return p
	}
	return strings.ToUpper(base[:1]) + base[1:]
}
