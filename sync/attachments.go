package sync

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/store"
	"github.com/teranos/pagesync/types"
)

// AttachmentHash fingerprints an attachment by name and size. Attachment
// bytes are not transferred, so both sides are compared on metadata a
// local file and a remote listing can each produce.
func AttachmentHash(filename string, size int64) string {
	return Hash(filename + "\x00" + strconv.FormatInt(size, 10))
}

// AttachmentPaths returns the workspace paths where an attachment of the
// document at docPath may live: the per-document directory first, then
// the shared flat one.
func AttachmentPaths(docPath, filename string) []string {
	dir := path.Dir(docPath)
	stem := strings.TrimSuffix(path.Base(docPath), local.DocumentExt)
	return []string{
		path.Join(dir, stem+local.AttachmentsSuffix, filename),
		path.Join(dir, local.AttachmentsDir, filename),
	}
}

// localAttachment finds an attachment's local copy. base stands in for
// the local hash when there is none, since a missing copy is not an edit.
func localAttachment(ws *local.Workspace, docPath, filename, base string) (rel, hash string) {
	for _, p := range AttachmentPaths(docPath, filename) {
		if size, ok := ws.Size(p); ok {
			return p, AttachmentHash(filename, size)
		}
	}
	return "", base
}

// syncAttachments mirrors the remote attachment list into the store. The
// remote fingerprint becomes the new base.
func syncAttachments(ctx context.Context, tx store.Tx, ws *local.Workspace, doc *types.Document, atts []remote.Attachment) error {
	existing, err := tx.ListAttachments(ctx, doc.ID)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(atts))
	for _, a := range atts {
		keep[a.ID] = struct{}{}
		remoteHash := AttachmentHash(a.Filename, a.Size)
		_, localHash := localAttachment(ws, doc.Path, a.Filename, remoteHash)
		err := tx.UpsertAttachment(ctx, &types.Attachment{
			DocumentID: doc.ID,
			ID:         a.ID,
			Filename:   a.Filename,
			MediaType:  a.MediaType,
			Size:       a.Size,
			Version:    a.Version,
			LocalHash:  localHash,
			RemoteHash: remoteHash,
			BaseHash:   remoteHash,
		})
		if err != nil {
			return err
		}
	}
	for _, a := range existing {
		if _, ok := keep[a.ID]; ok {
			continue
		}
		if err := tx.DeleteAttachment(ctx, doc.ID, a.ID); err != nil {
			return err
		}
	}
	return nil
}

// AttachmentStatus is the sync state of one attachment.
type AttachmentStatus struct {
	Attachment *types.Attachment
	LocalPath  string // empty when there is no local copy
	State      SyncState
}

// AttachmentStatus derives the state of every recorded attachment of the
// document at path. The local hash is taken from disk; the remote hash is
// the one recorded at the last pull.
func (e *Engine) AttachmentStatus(ctx context.Context, path string) ([]AttachmentStatus, error) {
	rec, err := e.store.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	atts, err := e.store.ListAttachments(ctx, rec.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "attachments of %s", path)
	}
	out := make([]AttachmentStatus, 0, len(atts))
	for _, a := range atts {
		rel, localHash := localAttachment(e.ws, rec.Path, a.Filename, a.BaseHash)
		a.LocalHash = localHash
		out = append(out, AttachmentStatus{
			Attachment: a,
			LocalPath:  rel,
			State:      ComputeSyncState(a.Hashes()),
		})
	}
	return out, nil
}
