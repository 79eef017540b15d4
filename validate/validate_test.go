package validate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/local"
)

type fakeKnown struct {
	tracked map[string]string
	files   map[string]bool
	fail    map[string]bool
}

func (k fakeKnown) LookupPath(_ context.Context, p string) (string, bool, error) {
	if k.fail[p] {
		return "", false, errors.New("store unavailable")
	}
	id, ok := k.tracked[p]
	return id, ok, nil
}

func (k fakeKnown) FileExists(p string) bool { return k.files[p] }

func codes(issues []Issue) []Code {
	out := make([]Code, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestFile_UnclosedMacro(t *testing.T) {
	issues, err := File(context.Background(), "a.md", ":::info\ntext\n", fakeKnown{}, Options{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, MacroUnclosed, issues[0].Code)
	assert.Equal(t, 1, issues[0].Line)
	assert.Equal(t, SeverityError, issues[0].Severity)
}

func TestFile_MacroBalance(t *testing.T) {
	content := ":::info\n:::warning\nbody\n:::\n:::\n:::\n```\n:::note\n```\n:::tip\n"
	issues, err := File(context.Background(), "a.md", content, fakeKnown{}, Options{})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, MacroUnmatchedClose, issues[0].Code)
	assert.Equal(t, 6, issues[0].Line)
	assert.Equal(t, MacroUnclosed, issues[1].Code)
	assert.Equal(t, 10, issues[1].Line)
	assert.Contains(t, issues[1].Message, "tip")
}

func TestFile_Links(t *testing.T) {
	known := fakeKnown{
		tracked: map[string]string{"docs/ok.md": "1"},
		files:   map[string]bool{"docs/draft.md": true},
	}
	content := "[ok](ok.md)\n[gone](gone.md)\n[draft](draft.md)\n[gone again](gone.md) `[code](x.md)`\n[ext](https://x.example)\n"

	issues, err := File(context.Background(), "docs/index.md", content, known, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Code{LinkBroken, LinkUntracked, LinkBroken}, codes(issues))
	assert.Contains(t, issues[0].Message, "gone.md")
	assert.Equal(t, 2, issues[0].Line)
	assert.Equal(t, SeverityWarning, issues[1].Severity)
	assert.Equal(t, 4, issues[2].Line)
}

func TestFile_Size(t *testing.T) {
	big := strings.Repeat("a", 101) + "\n"
	issues, err := File(context.Background(), "a.md", big, fakeKnown{}, Options{MaxBytes: 100})
	require.NoError(t, err)
	assert.Equal(t, []Code{SizeExceeded}, codes(issues))

	issues, err = File(context.Background(), "a.md", big, fakeKnown{}, Options{MaxBytes: -1})
	require.NoError(t, err)
	assert.Empty(t, issues)

	assert.Equal(t, DefaultMaxBytes, Options{}.maxBytes())
}

func TestFile_LookupError(t *testing.T) {
	_, err := File(context.Background(), "a.md", "[x](x.md)", fakeKnown{fail: map[string]bool{"x.md": true}}, Options{})
	assert.Error(t, err)
}

func TestIssueJSON(t *testing.T) {
	data, err := json.Marshal(Issue{Path: "a.md", Line: 1, Column: 2, Severity: SeverityWarning, Code: LinkUntracked, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"a.md","line":1,"column":2,"severity":"warning","code":"LINK_UNTRACKED","message":"m"}`, string(data))
	assert.Equal(t, "a.md:1:2: warning LINK_UNTRACKED: m", Issue{Path: "a.md", Line: 1, Column: 2, Severity: SeverityWarning, Code: LinkUntracked, Message: "m"}.String())
}

func writeTree(t *testing.T, files map[string]string) *local.Workspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	ws, err := local.OpenWorkspace(root)
	require.NoError(t, err)
	return ws
}

type wsKnown struct {
	fakeKnown
	ws *local.Workspace
}

func (k wsKnown) FileExists(p string) bool { return k.ws.FileExists(p) }

func TestTree(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"index.md":         "[guide](guide.md) [nope](nope.md)\n",
		"guide.md":         ":::info\nunclosed\n",
		"guide/child.md":   "child\n",
		"empty/index.md":   "---\nfolder: true\n---\n",
		"loose/a.md":       "a\n",
		"broken/index.md":  "---\nid: [\n---\n[bad](missing.md)\n",
		"section/index.md": "---\nfolder: true\n---\n",
		"section/page.md":  "page\n",
	})
	known := wsKnown{fakeKnown: fakeKnown{tracked: map[string]string{"guide.md": "1"}}, ws: ws}

	report, err := Tree(context.Background(), ws, known, Options{}, nil)
	require.NoError(t, err)
	assert.Len(t, report.Files, 8)
	assert.Empty(t, report.Failed())

	byCode := map[Code][]string{}
	for _, i := range report.Issues() {
		byCode[i.Code] = append(byCode[i.Code], i.Path)
	}
	assert.Equal(t, []string{"broken/index.md", "index.md"}, byCode[LinkBroken])
	assert.Equal(t, []string{"guide.md"}, byCode[MacroUnclosed])
	assert.Equal(t, []string{"empty/index.md"}, byCode[FolderEmpty])
	assert.Equal(t, []string{"loose/"}, byCode[FolderMissingIndex])
}

func TestTree_SizeIgnoresFrontmatter(t *testing.T) {
	title := strings.Repeat("t", 200)
	ws := writeTree(t, map[string]string{
		"short.md": "---\ntitle: " + title + "\n---\nshort body\n",
		"long.md":  "---\ntitle: x\n---\n" + strings.Repeat("b", 120) + "\n",
	})
	known := wsKnown{ws: ws}

	report, err := Tree(context.Background(), ws, known, Options{MaxBytes: 100}, nil)
	require.NoError(t, err)
	issues := report.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, SizeExceeded, issues[0].Code)
	assert.Equal(t, "long.md", issues[0].Path)
	assert.Contains(t, issues[0].Message, "121 bytes")
}

func TestTree_FailingFileDoesNotAbort(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"a.md": "[x](x.md)\n",
		"b.md": ":::note\n",
	})
	known := wsKnown{fakeKnown: fakeKnown{fail: map[string]bool{"x.md": true}}, ws: ws}

	report, err := Tree(context.Background(), ws, known, Options{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "a.md", report.Failed()[0].Path)
	assert.Equal(t, []Code{MacroUnclosed}, codes(report.Issues()))
	assert.True(t, HasErrors(report.Issues()))
}
