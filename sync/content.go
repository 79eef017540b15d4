// Package sync decides which side of a document moved since the last
// synchronization and carries changes across.
//
// Change detection is three-way: the canonicalized local content, the
// canonicalized remote content (converted to the local dialect) and the
// digest recorded at the last successful sync are compared to derive a
// state. Content is canonicalized first so line endings and trailing
// whitespace never register as edits.
package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Canonicalize normalizes text before hashing. Line endings become "\n",
// trailing whitespace is stripped from every line, runs of blank lines
// collapse to one, the document is trimmed, and exactly one trailing
// newline is appended. Canonicalize is idempotent; the empty document
// canonicalizes to "\n".
func Canonicalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 1)

	blank := false
	start := 0
	for start <= len(text) {
		end := strings.IndexAny(text[start:], "\r\n")
		var line string
		next := len(text) + 1
		if end < 0 {
			line = text[start:]
		} else {
			end += start
			line = text[start:end]
			next = end + 1
			if text[end] == '\r' && next < len(text) && text[next] == '\n' {
				next++
			}
		}
		line = strings.TrimRightFunc(line, unicode.IsSpace)

		if line == "" {
			blank = true
		} else {
			if b.Len() > 0 {
				b.WriteByte('\n')
				if blank {
					b.WriteByte('\n')
				}
			}
			b.WriteString(line)
			blank = false
		}
		start = next
	}

	out := strings.TrimSpace(b.String())
	return out + "\n"
}

// Hash returns the lowercase hex SHA-256 digest of text, byte for byte.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ContentHash is the digest used for local, remote and base hashes:
// the hash of the canonical form.
func ContentHash(text string) string {
	return Hash(Canonicalize(text))
}
