package types

import (
	"fmt"

	"github.com/teranos/pagesync/errors"
)

// Scope selects which pages a poller or pull enumerates. Implementations
// are PageScope, TreeScope and SpaceScope; consumers switch on the
// concrete type.
type Scope interface {
	fmt.Stringer
	scope()
}

// PageScope covers a single page. It has no listing capability.
type PageScope struct {
	PageID string
}

// TreeScope covers a page and all of its descendants.
type TreeScope struct {
	AncestorID string
}

// SpaceScope covers every page in a space.
type SpaceScope struct {
	SpaceKey string
}

func (PageScope) scope()  {}
func (TreeScope) scope()  {}
func (SpaceScope) scope() {}

func (s PageScope) String() string  { return "page:" + s.PageID }
func (s TreeScope) String() string  { return "tree:" + s.AncestorID }
func (s SpaceScope) String() string { return "space:" + s.SpaceKey }

// CanEnumerate reports whether a scope supports listing all of its pages,
// which deletion detection requires.
func CanEnumerate(s Scope) bool {
	switch s.(type) {
	case PageScope:
		return false
	case TreeScope, SpaceScope:
		return true
	}
	return false
}

// ParseScope builds a scope from its configured kind and id.
func ParseScope(kind, id string) (Scope, error) {
	if id == "" {
		return nil, errors.Newf("scope %q needs an id", kind)
	}
	switch kind {
	case "page":
		return PageScope{PageID: id}, nil
	case "tree":
		return TreeScope{AncestorID: id}, nil
	case "space":
		return SpaceScope{SpaceKey: id}, nil
	}
	return nil, errors.WithHint(errors.Newf("unknown scope kind %q", kind), "use page, tree or space")
}
