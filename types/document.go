// Package types holds the records shared by the sync engine, the record
// store, the link graph and the poller.
package types

import (
	"time"

	"github.com/teranos/pagesync/errors"
)

// Content status values reported by the remote store.
const (
	StatusCurrent       = "current"
	StatusDraft         = "draft"
	StatusArchived      = "archived"
	StatusDeletedRemote = "deleted-remote"
)

// HashTriple is the (local, remote, base) digest triple a sync state is derived from.
type HashTriple struct {
	Local  string
	Remote string
	Base   string
}

// Document is the sync record for one remote page and its local file.
type Document struct {
	ID            string
	Path          string
	Title         string
	SpaceKey      string
	Version       int
	LocalHash     string
	RemoteHash    string
	BaseHash      string
	ParentID      string
	Ancestors     []string
	Restricted    bool
	ContentStatus string
	IsFolder      bool
	CreatedBy     string
	CreatedAt     time.Time
	ModifiedBy    string
	ModifiedAt    time.Time
	SyncedAt      time.Time
}

// Hashes returns the document's hash triple.
func (d *Document) Hashes() HashTriple {
	return HashTriple{Local: d.LocalHash, Remote: d.RemoteHash, Base: d.BaseHash}
}

// Validate checks identity and ancestry invariants.
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.NewInvalidRecordError("document at %q has no id", d.Path)
	}
	if d.Path == "" {
		return errors.NewInvalidRecordError("document %s has no path", d.ID)
	}
	seen := make(map[string]struct{}, len(d.Ancestors))
	for _, a := range d.Ancestors {
		if a == d.ID {
			return errors.NewInvalidRecordError("document %s lists itself as ancestor", d.ID)
		}
		if _, dup := seen[a]; dup {
			return errors.NewInvalidRecordError("document %s has ancestor %s twice", d.ID, a)
		}
		seen[a] = struct{}{}
	}
	if d.ParentID == d.ID {
		return errors.NewInvalidRecordError("document %s is its own parent", d.ID)
	}
	if d.ParentID != "" && len(d.Ancestors) > 0 && d.Ancestors[len(d.Ancestors)-1] != d.ParentID {
		return errors.NewInvalidRecordError("document %s: parent %s is not the last ancestor", d.ID, d.ParentID)
	}
	if d.ParentID == "" && len(d.Ancestors) > 0 {
		return errors.NewInvalidRecordError("document %s has ancestors but no parent", d.ID)
	}
	return nil
}

// Attachment is a file owned by exactly one document, tracked with the
// same hash triple.
type Attachment struct {
	DocumentID string
	ID         string
	Filename   string
	MediaType  string
	Size       int64
	Version    int
	LocalHash  string
	RemoteHash string
	BaseHash   string
}

// Hashes returns the attachment's hash triple.
func (a *Attachment) Hashes() HashTriple {
	return HashTriple{Local: a.LocalHash, Remote: a.RemoteHash, Base: a.BaseHash}
}
