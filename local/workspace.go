package local

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/pagesync/errors"
)

const (
	// DocumentExt is the extension of tracked documents.
	DocumentExt = ".md"
	// IndexFile names the folder-index document of a directory.
	IndexFile = "index.md"
	// AttachmentsDir holds attachments in the flat layout.
	AttachmentsDir = "attachments"
	// AttachmentsSuffix marks a per-document attachment directory.
	AttachmentsSuffix = ".attachments"
)

// Document is a local file split into frontmatter and body. Path is
// slash-separated and relative to the workspace root.
type Document struct {
	Path        string
	Frontmatter Frontmatter
	Body        string
}

// Workspace is a directory tree of documents.
type Workspace struct {
	root string
}

// OpenWorkspace opens root, which must be an existing directory.
func OpenWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve workspace %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open workspace %s", abs)
	}
	if !info.IsDir() {
		return nil, errors.Newf("workspace %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Abs converts a workspace-relative path to an absolute one.
func (w *Workspace) Abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// Rel converts an absolute path inside the workspace to a relative
// slash-separated path.
func (w *Workspace) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", errors.Wrapf(err, "%s is outside the workspace", abs)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.Newf("%s is outside the workspace", abs)
	}
	return rel, nil
}

// FileExists reports whether a workspace-relative path is a regular file.
func (w *Workspace) FileExists(rel string) bool {
	info, err := os.Stat(w.Abs(rel))
	return err == nil && info.Mode().IsRegular()
}

// skipDir reports whether a directory holds no documents of its own.
func skipDir(name string) bool {
	return name != "." && (strings.HasPrefix(name, ".") || name == AttachmentsDir || strings.HasSuffix(name, AttachmentsSuffix))
}

// IsDocument reports whether a relative path names a document file.
func IsDocument(rel string) bool {
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if skipDir(part) {
			return false
		}
	}
	base := path.Base(rel)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(path.Ext(base), DocumentExt)
}

// Documents lists every document path in lexical order.
func (w *Workspace) Documents() ([]string, error) {
	var out []string
	err := w.walk(func(rel string, d fs.DirEntry) {
		if !d.IsDir() && IsDocument(rel) {
			out = append(out, rel)
		}
	})
	return out, err
}

// Dirs lists every directory that may hold documents, "." first.
func (w *Workspace) Dirs() ([]string, error) {
	var out []string
	err := w.walk(func(rel string, d fs.DirEntry) {
		if d.IsDir() {
			out = append(out, rel)
		}
	})
	return out, err
}

func (w *Workspace) walk(fn func(rel string, d fs.DirEntry)) error {
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := w.Rel(p)
		if err != nil {
			return err
		}
		if d.IsDir() && skipDir(d.Name()) && rel != "." {
			return filepath.SkipDir
		}
		fn(rel, d)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to walk workspace %s", w.root)
	}
	return nil
}

// Read loads a document. Invalid frontmatter is returned as an error along
// with the document read as body only.
func (w *Workspace) Read(rel string) (Document, error) {
	data, err := os.ReadFile(w.Abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, errors.Wrapf(errors.ErrNotFound, "document %s", rel)
		}
		return Document{}, errors.Wrapf(err, "failed to read %s", rel)
	}
	fm, body, err := SplitFrontmatter(string(data))
	if err != nil {
		return Document{Path: rel, Body: string(data)}, errors.Wrapf(err, "document %s", rel)
	}
	return Document{Path: rel, Frontmatter: fm, Body: body}, nil
}

// Write stores a document atomically: the content goes to a temporary file
// in the same directory which is then renamed over the target.
func (w *Workspace) Write(doc Document) error {
	content, err := RenderFrontmatter(doc.Frontmatter, doc.Body)
	if err != nil {
		return err
	}
	return w.WriteFile(doc.Path, []byte(content))
}

// WriteFile atomically writes raw bytes to a workspace-relative path.
func (w *Workspace) WriteFile(rel string, data []byte) error {
	target := w.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", rel)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", rel)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", rel)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", rel)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "failed to replace %s", rel)
	}
	return nil
}

// ReadFile returns the raw bytes at a workspace-relative path.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(w.Abs(rel))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "file %s", rel)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", rel)
	}
	return data, nil
}

// Size reports the size of a regular workspace file.
func (w *Workspace) Size(rel string) (int64, bool) {
	info, err := os.Stat(w.Abs(rel))
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// Remove deletes a workspace file. A missing file is not an error.
func (w *Workspace) Remove(rel string) error {
	if err := os.Remove(w.Abs(rel)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", rel)
	}
	return nil
}

// Children lists the documents and subdirectories directly inside dir,
// excluding dir's own index file.
func (w *Workspace) Children(dir string) (docs []string, subdirs []string, err error) {
	entries, err := os.ReadDir(w.Abs(dir))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	for _, e := range entries {
		rel := path.Join(dir, e.Name())
		switch {
		case e.IsDir():
			if !skipDir(e.Name()) {
				subdirs = append(subdirs, rel)
			}
		case IsDocument(rel) && !strings.EqualFold(e.Name(), IndexFile):
			docs = append(docs, rel)
		}
	}
	sort.Strings(docs)
	sort.Strings(subdirs)
	return docs, subdirs, nil
}
