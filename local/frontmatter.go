// Package local manages the local workspace: document files with YAML
// frontmatter, path assignment for pulled pages and change watching.
package local

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pagesync/errors"
)

const fence = "---"

// Frontmatter is the metadata block at the top of a tracked document. The
// body below it is what gets hashed and converted.
type Frontmatter struct {
	ID      string `yaml:"id,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Space   string `yaml:"space,omitempty"`
	Version int    `yaml:"version,omitempty"`
	Parent  string `yaml:"parent,omitempty"`
	Folder  bool   `yaml:"folder,omitempty"`
}

// IsZero reports whether no field is set.
func (f Frontmatter) IsZero() bool {
	return f == Frontmatter{}
}

// SplitFrontmatter separates a leading "---" delimited YAML block from the
// body. Content without a block returns a zero Frontmatter and the content
// unchanged. A block that is not valid YAML is an error; the body is still
// returned.
func SplitFrontmatter(content string) (Frontmatter, string, error) {
	var fm Frontmatter
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, fence+"\n") {
		return fm, content, nil
	}
	rest := normalized[len(fence)+1:]

	var block, body string
	switch {
	case strings.HasPrefix(rest, fence+"\n"):
		body = rest[len(fence)+1:]
	case rest == fence:
	default:
		end := strings.Index(rest, "\n"+fence+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+fence) {
				return fm, content, nil
			}
			end = len(rest) - len(fence) - 1
			block = rest[:end]
		} else {
			block = rest[:end]
			body = rest[end+len(fence)+2:]
		}
	}

	if strings.TrimSpace(block) != "" {
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			return Frontmatter{}, body, errors.Wrap(err, "invalid frontmatter")
		}
	}
	return fm, strings.TrimPrefix(body, "\n"), nil
}

// RenderFrontmatter prepends fm to body. A zero Frontmatter renders the
// body alone.
func RenderFrontmatter(fm Frontmatter, body string) (string, error) {
	if fm.IsZero() {
		return body, nil
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode frontmatter")
	}
	return fence + "\n" + string(out) + fence + "\n\n" + body, nil
}
