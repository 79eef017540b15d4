// Package sym defines the glyphs pagesync prints for sync states, poller
// events and CLI commands. They are stable across CLI output and logs.
package sym

// Sync state glyphs.
const (
	Synced         = "≡" // local, remote and base agree
	LocalModified  = "↑" // push pending
	RemoteModified = "↓" // pull pending
	Conflict       = "⇅" // both sides moved
	Untracked      = "+" // local file without a record
	RemoteOnly     = "○" // record without a local file
)

// System markers.
const (
	Poll     = "꩜" // poller cycle
	PollOpen = "✿" // poller start
	PollStop = "❀" // poller stop
	DB       = "⊔" // record store
	Doc      = "▤" // document
	Link     = "⟶" // link graph
	AM       = "⚙" // configuration
)

// CommandToSymbol maps CLI commands to their glyph.
var CommandToSymbol = map[string]string{
	"status":   Synced,
	"push":     LocalModified,
	"pull":     RemoteModified,
	"resolve":  Conflict,
	"links":    Link,
	"watch":    Poll,
	"validate": Doc,
	"am":       AM,
}

// CommandDescriptions holds one-line help for each command in CommandToSymbol.
var CommandDescriptions = map[string]string{
	"status":   "Show the sync state of local documents",
	"push":     "Publish local changes to the remote store",
	"pull":     "Fetch remote changes into the local tree",
	"resolve":  "Settle a conflict by accepting one side",
	"links":    "Show how a document's links changed since the last sync",
	"watch":    "Poll the remote store and follow local edits",
	"validate": "Check documents for broken links and malformed macros",
	"am":       "Show and check pagesync configuration",
}

// StateSymbol returns the glyph for a sync state name, or "?" when unknown.
func StateSymbol(state string) string {
	switch state {
	case "synced":
		return Synced
	case "local-modified":
		return LocalModified
	case "remote-modified":
		return RemoteModified
	case "conflict":
		return Conflict
	case "untracked":
		return Untracked
	case "remote-only":
		return RemoteOnly
	}
	return "?"
}
