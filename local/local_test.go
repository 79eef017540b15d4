package local

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
)

func TestSplitFrontmatter(t *testing.T) {
	t.Run("no block", func(t *testing.T) {
		fm, body, err := SplitFrontmatter("# Title\n")
		require.NoError(t, err)
		assert.True(t, fm.IsZero())
		assert.Equal(t, "# Title\n", body)
	})

	t.Run("block and body", func(t *testing.T) {
		fm, body, err := SplitFrontmatter("---\nid: \"123\"\ntitle: Guide\nversion: 4\n---\n\nBody\n")
		require.NoError(t, err)
		assert.Equal(t, Frontmatter{ID: "123", Title: "Guide", Version: 4}, fm)
		assert.Equal(t, "Body\n", body)
	})

	t.Run("crlf", func(t *testing.T) {
		fm, body, err := SplitFrontmatter("---\r\nid: x\r\n---\r\nBody\r\n")
		require.NoError(t, err)
		assert.Equal(t, "x", fm.ID)
		assert.Equal(t, "Body\n", body)
	})

	t.Run("block only", func(t *testing.T) {
		fm, body, err := SplitFrontmatter("---\nfolder: true\n---")
		require.NoError(t, err)
		assert.True(t, fm.Folder)
		assert.Empty(t, body)
	})

	t.Run("unterminated is body", func(t *testing.T) {
		fm, body, err := SplitFrontmatter("---\nnot closed\n")
		require.NoError(t, err)
		assert.True(t, fm.IsZero())
		assert.Equal(t, "---\nnot closed\n", body)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, body, err := SplitFrontmatter("---\nid: [\n---\nBody\n")
		require.Error(t, err)
		assert.Equal(t, "Body\n", body)
	})
}

func TestRenderFrontmatter(t *testing.T) {
	out, err := RenderFrontmatter(Frontmatter{}, "Body\n")
	require.NoError(t, err)
	assert.Equal(t, "Body\n", out)

	fm := Frontmatter{ID: "9", Title: "Nine", Space: "DOC", Version: 2, Parent: "1"}
	out, err = RenderFrontmatter(fm, "Body\n")
	require.NoError(t, err)

	back, body, err := SplitFrontmatter(out)
	require.NoError(t, err)
	assert.Equal(t, fm, back)
	assert.Equal(t, "Body\n", body)
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Getting Started", "getting-started"},
		{"Crème Brûlée & Co.", "creme-brulee-co"},
		{"  --API v2--  ", "api-v2"},
		{"日本語", "日本語"},
		{"!!!", "untitled"},
		{"Release 1.2 (Draft)", "release-1-2-draft"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}
}

func TestAssignPath(t *testing.T) {
	taken := map[string]bool{"docs/guide.md": true, "docs/guide-2.md": true}
	got := AssignPath("docs", "Guide", func(p string) bool { return taken[p] })
	assert.Equal(t, "docs/guide-3.md", got)
	assert.Equal(t, "intro.md", AssignPath(".", "Intro", func(string) bool { return false }))
}

func TestFolderPath(t *testing.T) {
	assert.Equal(t, "docs/guide", FolderPath("docs/guide.md"))
	assert.Equal(t, "docs", FolderPath("docs/index.md"))
}

func newWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	ws, err := OpenWorkspace(root)
	require.NoError(t, err)
	return ws
}

func TestWorkspace_Documents(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"index.md":                    "",
		"b.md":                        "",
		"docs/a.md":                   "",
		"docs/notes.txt":              "",
		"docs/a.attachments/inner.md": "",
		"attachments/file.md":         "",
		".git/HEAD.md":                "",
		"docs/.draft.md":              "",
	})
	docs, err := ws.Documents()
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md", "docs/a.md", "index.md"}, docs)

	dirs, err := ws.Dirs()
	require.NoError(t, err)
	assert.Equal(t, []string{".", "docs"}, dirs)
}

func TestWorkspace_ReadWrite(t *testing.T) {
	ws := newWorkspace(t, nil)
	doc := Document{Path: "space/page.md", Frontmatter: Frontmatter{ID: "1", Title: "Page"}, Body: "Hello\n"}
	require.NoError(t, ws.Write(doc))
	assert.True(t, ws.FileExists("space/page.md"))

	got, err := ws.Read("space/page.md")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	entries, err := os.ReadDir(ws.Abs("space"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not remain")

	_, err = ws.Read("missing.md")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestWorkspace_RawFiles(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"attachments/a.png": "1234"})

	data, err := ws.ReadFile("attachments/a.png")
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))
	_, err = ws.ReadFile("missing.png")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	size, ok := ws.Size("attachments/a.png")
	assert.True(t, ok)
	assert.Equal(t, int64(4), size)
	_, ok = ws.Size("attachments")
	assert.False(t, ok, "directories have no size")

	require.NoError(t, ws.Remove("attachments/a.png"))
	assert.False(t, ws.FileExists("attachments/a.png"))
	assert.NoError(t, ws.Remove("attachments/a.png"), "removing twice is fine")
}

func TestWorkspace_Rel(t *testing.T) {
	ws := newWorkspace(t, nil)
	rel, err := ws.Rel(ws.Abs("a/b.md"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.md", rel)

	_, err = ws.Rel(filepath.Dir(ws.Root()))
	assert.Error(t, err)
}

func TestWorkspace_Children(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"docs/index.md":            "",
		"docs/a.md":                "",
		"docs/sub/b.md":            "",
		"docs/a.attachments/x.png": "",
	})
	docs, subdirs, err := ws.Children("docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.md"}, docs)
	assert.Equal(t, []string{"docs/sub"}, subdirs)
}

func TestWatcher(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.md": "one"})
	changes := make(chan []string, 4)
	w, err := NewWatcher(ws, func(paths []string) { changes <- paths }, zap.NewNop().Sugar())
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(ws.Abs("a.md"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(ws.Abs("ignored.txt"), []byte("x"), 0o644))

	select {
	case paths := <-changes:
		assert.Equal(t, []string{"a.md"}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
