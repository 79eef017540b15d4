package types

import "fmt"

// LinkType classifies a link. The set is closed.
type LinkType int

const (
	LinkInternal LinkType = iota
	LinkExternal
	LinkAttachment
	LinkAnchor
)

func (t LinkType) String() string {
	switch t {
	case LinkInternal:
		return "internal"
	case LinkExternal:
		return "external"
	case LinkAttachment:
		return "attachment"
	case LinkAnchor:
		return "anchor"
	}
	return fmt.Sprintf("LinkType(%d)", int(t))
}

// ParseLinkType is the inverse of LinkType.String.
func ParseLinkType(s string) (LinkType, bool) {
	switch s {
	case "internal":
		return LinkInternal, true
	case "external":
		return LinkExternal, true
	case "attachment":
		return LinkAttachment, true
	case "anchor":
		return LinkAnchor, true
	}
	return 0, false
}

// Link is a stored edge from a source document. Exactly one of TargetID or
// TargetPath (internal), URL (external, anchor) or Filename (attachment)
// carries the target.
type Link struct {
	SourceID   string
	Type       LinkType
	TargetID   string
	TargetPath string
	URL        string
	Filename   string
	Broken     bool
	Line       int
	Column     int
	Text       string
}
