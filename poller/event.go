package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/teranos/pagesync/remote"
)

// EventType is the kind of remote change an Event reports.
type EventType int

const (
	PageCreated EventType = iota
	PageChanged
	PageDeleted
	FolderCreated
	FolderChanged
	FolderDeleted
)

func (t EventType) String() string {
	switch t {
	case PageCreated:
		return "page-created"
	case PageChanged:
		return "page-changed"
	case PageDeleted:
		return "page-deleted"
	case FolderCreated:
		return "folder-created"
	case FolderChanged:
		return "folder-changed"
	case FolderDeleted:
		return "folder-deleted"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// IsFolder reports whether the event concerns a folder.
func (t EventType) IsFolder() bool {
	return t >= FolderCreated
}

// Event is one remote change observed by a poll cycle.
type Event struct {
	Type    EventType
	ID      string
	Title   string
	Version int
	// PreviousVersion and PreviousTitle are set on changed events.
	PreviousVersion int
	PreviousTitle   string
	// Page is the listing entry for page created and changed events.
	Page    *remote.Page
	CycleID string
	At      time.Time
}

func (e Event) String() string {
	switch e.Type {
	case PageChanged:
		return fmt.Sprintf("%s %s v%d→v%d", e.Type, e.ID, e.PreviousVersion, e.Version)
	case FolderChanged:
		if e.PreviousTitle != e.Title {
			return fmt.Sprintf("%s %s %q→%q", e.Type, e.ID, e.PreviousTitle, e.Title)
		}
	}
	return fmt.Sprintf("%s %s", e.Type, e.ID)
}

// Handler consumes events. Handlers run sequentially in registration order;
// a returned error is logged and dispatch continues.
type Handler func(ctx context.Context, e Event) error

// Entry is what the poller remembers about a page or folder.
type Entry struct {
	Version int
	Title   string
}

// Snapshot is the poller's known state.
type Snapshot struct {
	Pages      map[string]Entry
	Folders    map[string]Entry
	LastPollAt time.Time
}

func newSnapshot() Snapshot {
	return Snapshot{Pages: make(map[string]Entry), Folders: make(map[string]Entry)}
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Pages:      make(map[string]Entry, len(s.Pages)),
		Folders:    make(map[string]Entry, len(s.Folders)),
		LastPollAt: s.LastPollAt,
	}
	for k, v := range s.Pages {
		out.Pages[k] = v
	}
	for k, v := range s.Folders {
		out.Folders[k] = v
	}
	return out
}

// Result describes one Poll call.
type Result struct {
	CycleID string
	// Skipped is set when a cycle was already running; nothing happened.
	Skipped bool
	// Baseline is set when the call seeded the snapshot instead of diffing.
	Baseline  bool
	Events    []Event
	StartedAt time.Time
	Duration  time.Duration
}
