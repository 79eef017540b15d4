// Package store persists sync records: documents with their hash triple,
// attachments, and the link graph. The path column doubles as the local
// path index.
package store

import (
	"context"

	"github.com/teranos/pagesync/types"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	SpaceKey      string
	ParentID      string
	PathPrefix    string // matches the directory and everything below it
	ContentStatus string
	FoldersOnly   bool
}

// Tx is the record API available inside and outside a transaction.
type Tx interface {
	// GetByPath returns errors.ErrNotFound when no record has the path.
	GetByPath(ctx context.Context, path string) (*types.Document, error)
	// GetByID returns errors.ErrNotFound when no record has the id.
	GetByID(ctx context.Context, id string) (*types.Document, error)
	// GetByTitle returns errors.ErrNotFound when no record has the title.
	// An empty spaceKey matches any space; the first path wins.
	GetByTitle(ctx context.Context, spaceKey, title string) (*types.Document, error)
	List(ctx context.Context, f Filter) ([]*types.Document, error)
	// Upsert inserts or replaces a record by id. Invalid records fail with
	// errors.ErrInvalidRecord; a path owned by another id with
	// errors.ErrPathTaken.
	Upsert(ctx context.Context, doc *types.Document) error
	// Delete removes a record with its attachments and outgoing links.
	Delete(ctx context.Context, id string) error

	// SetLinks replaces every outgoing link of sourceID.
	SetLinks(ctx context.Context, sourceID string, links []types.Link) error
	LinksFrom(ctx context.Context, sourceID string) ([]types.Link, error)
	LinksTo(ctx context.Context, targetID string) ([]types.Link, error)

	UpsertAttachment(ctx context.Context, a *types.Attachment) error
	ListAttachments(ctx context.Context, documentID string) ([]*types.Attachment, error)
	DeleteAttachment(ctx context.Context, documentID, id string) error
}

// Store is the record store.
type Store interface {
	Tx
	// LookupPath maps a path to a document id; ok is false when untracked.
	LookupPath(ctx context.Context, path string) (id string, ok bool, err error)
	// WithTx runs fn in one transaction, committed when fn returns nil.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
