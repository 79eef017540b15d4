package local

import (
	"path"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug turns a page title into a file name stem: accents are folded,
// letters lowercased and every other run of characters becomes one "-".
// A title with nothing usable yields "untitled".
func Slug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// AssignPath picks a document path for a page titled title inside dir. When
// the slug is taken a numeric suffix is added, starting at 2.
func AssignPath(dir, title string, taken func(string) bool) string {
	stem := Slug(title)
	candidate := path.Join(dir, stem+DocumentExt)
	for n := 2; taken(candidate); n++ {
		candidate = path.Join(dir, stem+"-"+strconv.Itoa(n)+DocumentExt)
	}
	return candidate
}

// FolderPath is the directory used for the children of a page whose
// document lives at docPath: "guide.md" keeps its children in "guide/".
// Index documents keep children beside them.
func FolderPath(docPath string) string {
	if strings.EqualFold(path.Base(docPath), IndexFile) {
		return path.Dir(docPath)
	}
	return strings.TrimSuffix(docPath, path.Ext(docPath))
}
