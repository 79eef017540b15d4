package sync

import (
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/types"
)

// SyncState is the derived relationship between a local document and its
// remote page.
type SyncState string

const (
	StateSynced         SyncState = "synced"
	StateLocalModified  SyncState = "local-modified"
	StateRemoteModified SyncState = "remote-modified"
	StateConflict       SyncState = "conflict"

	// Assigned from record presence, never from hashes.
	StateUntracked  SyncState = "untracked"
	StateRemoteOnly SyncState = "remote-only"
)

// ComputeSyncState derives the state from a hash triple:
//
//	L=B  R=B        synced
//	L≠B  R=B        local-modified
//	L=B  R≠B        remote-modified
//	L≠B  R≠B  L=R   synced (same edit on both sides)
//	L≠B  R≠B  L≠R   conflict
func ComputeSyncState(h types.HashTriple) SyncState {
	localMoved := h.Local != h.Base
	remoteMoved := h.Remote != h.Base
	switch {
	case !localMoved && !remoteMoved:
		return StateSynced
	case localMoved && !remoteMoved:
		return StateLocalModified
	case !localMoved && remoteMoved:
		return StateRemoteModified
	case h.Local == h.Remote:
		return StateSynced
	default:
		return StateConflict
	}
}

// Resolution settles a conflict.
type Resolution int

const (
	// AcceptLocal keeps the local content; the next push overwrites the remote.
	AcceptLocal Resolution = iota
	// AcceptRemote discards the local edit; the next pull overwrites the file.
	AcceptRemote
	// ManualMerge records hand-merged content that must be pushed.
	ManualMerge
)

func (r Resolution) String() string {
	switch r {
	case AcceptLocal:
		return "accept-local"
	case AcceptRemote:
		return "accept-remote"
	case ManualMerge:
		return "manual-merge"
	}
	return "unknown"
}

// ParseResolution accepts "local", "remote" or "merge" and their long forms.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "local", "accept-local":
		return AcceptLocal, nil
	case "remote", "accept-remote":
		return AcceptRemote, nil
	case "merge", "manual-merge":
		return ManualMerge, nil
	}
	return 0, errors.WithHint(errors.Newf("unknown resolution %q", s), "use local, remote or merge")
}

// MarkPushed records a successful push of content hashing to localHash.
func MarkPushed(doc *types.Document, localHash string) {
	doc.LocalHash = localHash
	doc.RemoteHash = localHash
	doc.BaseHash = localHash
}

// MarkPulled records a successful pull of remote content hashing to
// remoteHash; the local file now holds the same content.
func MarkPulled(doc *types.Document, remoteHash string) {
	doc.RemoteHash = remoteHash
	doc.LocalHash = remoteHash
	doc.BaseHash = remoteHash
}

// ApplyResolution moves the base hash of a conflicted document so the
// chosen side wins on the next sync. mergedHash is only used by ManualMerge.
// The document's resulting state is local-modified for AcceptLocal and
// ManualMerge, remote-modified for AcceptRemote.
func ApplyResolution(doc *types.Document, r Resolution, mergedHash string) error {
	if ComputeSyncState(doc.Hashes()) != StateConflict {
		return errors.Wrapf(errors.ErrNotInConflict, "%s", doc.Path)
	}
	switch r {
	case AcceptLocal:
		doc.BaseHash = doc.RemoteHash
	case AcceptRemote:
		doc.BaseHash = doc.LocalHash
	case ManualMerge:
		if mergedHash == "" {
			return errors.New("manual merge requires the merged content hash")
		}
		doc.LocalHash = mergedHash
		doc.BaseHash = doc.RemoteHash
	default:
		return errors.Newf("unknown resolution %d", int(r))
	}
	return nil
}
