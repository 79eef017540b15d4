// Package remote defines the transport the sync engine and poller talk to.
// The engine never depends on a wire protocol; remote/confluence speaks the
// REST API and remote/memory keeps pages in a map for tests and dry runs.
package remote

import (
	"context"
	"time"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/types"
)

// ErrScopeNotEnumerable is returned by listing calls for a scope that
// cannot be listed (a single page).
var ErrScopeNotEnumerable = errors.New("scope cannot be enumerated")

// Page is a remote page. Body holds storage markup and is only populated by
// GetPage, CreatePage and UpdatePage.
type Page struct {
	ID         string
	Title      string
	SpaceKey   string
	Version    int
	ParentID   string
	Ancestors  []string // root to parent
	Status     string
	Restricted bool
	CreatedBy  string
	CreatedAt  time.Time
	ModifiedBy string
	ModifiedAt time.Time
	Body       string
}

// Folder is a remote container without content of its own.
type Folder struct {
	ID        string
	Title     string
	SpaceKey  string
	Version   int
	ParentID  string
	Ancestors []string
}

// Attachment describes a file attached to a page.
type Attachment struct {
	ID          string
	PageID      string
	Filename    string
	MediaType   string
	Size        int64
	Version     int
	DownloadURL string
}

// NewPage is the input to CreatePage.
type NewPage struct {
	SpaceKey string
	ParentID string
	Title    string
	Body     string
}

// PageUpdate replaces a page's title and body. Version is the version the
// caller last saw; the remote rejects the update with
// errors.ErrVersionConflict if the page has moved past it.
type PageUpdate struct {
	ID      string
	Title   string
	Body    string
	Version int
}

// Client is the remote transport. Missing pages are reported with
// errors.ErrNotFound.
type Client interface {
	// ListPages enumerates every page in scope without bodies.
	ListPages(ctx context.Context, scope types.Scope) ([]Page, error)
	GetPage(ctx context.Context, id string) (*Page, error)
	// ChangedSince lists pages in scope modified at or after since. A zero
	// since lists everything.
	ChangedSince(ctx context.Context, scope types.Scope, since time.Time) ([]Page, error)
	ListFolders(ctx context.Context, scope types.Scope) ([]Folder, error)
	UpdatePage(ctx context.Context, u PageUpdate) (*Page, error)
	CreatePage(ctx context.Context, p NewPage) (*Page, error)
	ListAttachments(ctx context.Context, pageID string) ([]Attachment, error)
}

// InScope reports whether p belongs to scope.
func InScope(p Page, scope types.Scope) bool {
	return inScope(p.ID, p.SpaceKey, p.Ancestors, scope)
}

// FolderInScope reports whether f belongs to scope. A page scope holds no
// folders.
func FolderInScope(f Folder, scope types.Scope) bool {
	if _, ok := scope.(types.PageScope); ok {
		return false
	}
	return inScope(f.ID, f.SpaceKey, f.Ancestors, scope)
}

func inScope(id, space string, ancestors []string, scope types.Scope) bool {
	switch s := scope.(type) {
	case types.PageScope:
		return id == s.PageID
	case types.TreeScope:
		if id == s.AncestorID {
			return true
		}
		for _, a := range ancestors {
			if a == s.AncestorID {
				return true
			}
		}
		return false
	case types.SpaceScope:
		return space == s.SpaceKey
	}
	return false
}
